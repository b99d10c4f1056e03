package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"booq/loader"
	"booq/store"
	"booq/types"
)

type PageReader interface {
	PageText(ctx context.Context, info types.FileInfo, page int) (string, error)
}

type StructureExtractor interface {
	ExtractStructure(ctx context.Context, text string) ([]types.Chapter, error)
}

type FileHandler struct {
	files       store.FileRegistry
	pages       PageReader
	extractor   StructureExtractor
	storagePath string
}

func NewFileHandler(files store.FileRegistry, pages PageReader, extractor StructureExtractor, storagePath string) *FileHandler {
	return &FileHandler{
		files:       files,
		pages:       pages,
		extractor:   extractor,
		storagePath: storagePath,
	}
}

func (h *FileHandler) HandleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return ErrBadRequest()
	}

	name := filepath.Base(fileHeader.Filename)
	fileType := loader.FileTypeOf(name)
	if fileType == types.FileUnknown {
		return NewValidationError(map[string]string{"file": "unsupported file type"})
	}

	id := uuid.NewString()
	dir := filepath.Join(h.storagePath, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	path := filepath.Join(dir, name)
	if err := c.SaveFile(fileHeader, path); err != nil {
		os.RemoveAll(dir)
		return err
	}

	pages, err := loader.PageCount(path, fileType)
	if err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("read %s: %v: %w", name, err, types.ErrValidation)
	}

	info := types.FileInfo{
		ID:          id,
		Name:        name,
		DisplayName: name,
		FileType:    fileType,
		Path:        path,
		Size:        fileHeader.Size,
		CreatedAt:   time.Now().UTC(),
		TotalPages:  pages,
	}
	if err := h.files.SaveFile(c.UserContext(), info); err != nil {
		os.RemoveAll(dir)
		return err
	}
	slog.Info("file uploaded", "file_id", id, "name", name, "pages", pages)

	return c.Status(fiber.StatusCreated).JSON(info)
}

func (h *FileHandler) HandleList(c *fiber.Ctx) error {
	files, err := h.files.ListFiles(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(files)
}

func (h *FileHandler) HandleGet(c *fiber.Ctx) error {
	info, err := h.files.GetFile(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(info)
}

func (h *FileHandler) HandlePage(c *fiber.Ctx) error {
	page, text, err := h.pageText(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"page": page, "content": text})
}

func (h *FileHandler) HandleStructure(c *fiber.Ctx) error {
	page, text, err := h.pageText(c)
	if err != nil {
		return err
	}
	chapters, err := h.extractor.ExtractStructure(c.UserContext(), text)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"page": page, "chapters": chapters})
}

func (h *FileHandler) pageText(c *fiber.Ctx) (int, string, error) {
	page, err := c.ParamsInt("page")
	if err != nil {
		return 0, "", ErrInvalidID()
	}
	info, err := h.files.GetFile(c.UserContext(), c.Params("id"))
	if err != nil {
		return 0, "", err
	}
	text, err := h.pages.PageText(c.UserContext(), *info, page)
	if err != nil {
		return 0, "", err
	}
	return page, text, nil
}
