package model

import "fmt"

const ExamplesSystemPrompt = `You are an assistant that analyses educational material.
Find every worked example in the text, that is every problem that comes with a complete answer or solution.

For each example extract:
1. the question
2. the answer or solution
3. the knowledge points it covers
4. the chapter and section, if they can be identified

Return ONLY a JSON object with this structure:
{
  "examples": [
    {
      "question": "question text",
      "answer": "answer text",
      "analysis": "detailed explanation",
      "knowledge_points": ["point 1", "point 2"],
      "chapter": "chapter name",
      "section": "section name"
    }
  ]
}
If there are no examples return {"examples": []}.`

const ExercisesSystemPrompt = `You are an assistant that analyses educational material.
Find every exercise in the text, that is every practice problem printed without an answer.

Use the reference knowledge and worked examples to solve them.

For each exercise produce:
1. the question
2. a complete answer derived from the knowledge points and examples
3. the reasoning behind the solution
4. the knowledge points it covers
5. the chapter and section, if they can be identified

Return ONLY a JSON object with this structure:
{
  "exercises": [
    {
      "question": "question text",
      "answer": "generated answer",
      "analysis": "detailed explanation",
      "knowledge_points": ["point 1", "point 2"],
      "chapter": "chapter name",
      "section": "section name"
    }
  ]
}
If there are no exercises return {"exercises": []}.`

const AnswerSystemPrompt = `You are an assistant that solves problems from educational material.
Using the knowledge points and context provided, write a detailed answer for the given question.

Return ONLY a JSON object with this structure:
{
  "answer": "short answer",
  "analysis": "step by step solution",
  "knowledge_points": ["knowledge points used"]
}`

const StructureSystemPrompt = `You are an assistant that analyses educational material.
Identify the chapter structure and the main knowledge points of the text.

Return ONLY a JSON object with this structure:
{
  "chapters": [
    {
      "name": "chapter name",
      "sections": [
        {
          "name": "section name",
          "knowledge_points": ["point 1", "point 2"]
        }
      ]
    }
  ]
}`

func ExamplesUserPrompt(text string) string {
	return fmt.Sprintf("Analyse the worked examples in the following text:\n\n%s", text)
}

func ExercisesUserPrompt(text, context string) string {
	return fmt.Sprintf("Reference context:\n%s\n\nAnalyse and answer the exercises in the following text:\n\n%s", context, text)
}

func AnswerUserPrompt(question, context string) string {
	return fmt.Sprintf("Reference knowledge and context:\n%s\n\nWrite the answer for this question:\n\n%s", context, question)
}

func StructureUserPrompt(text string) string {
	return fmt.Sprintf("Analyse the chapter structure of the following text:\n\n%s", text)
}

// RepairPrompt asks the model to turn its previous reply into valid JSON.
func RepairPrompt(badOutput string) string {
	return fmt.Sprintf(`
You previously returned an invalid JSON.

Your task is to FIX the JSON.

RULES:
- Output ONLY valid JSON
- Do NOT add or remove information
- Do NOT add explanations
- Do NOT include markdown
- Do NOT include text outside JSON

INVALID OUTPUT:
<<<
%s
>>>

Return the corrected JSON only.
`, badOutput)
}
