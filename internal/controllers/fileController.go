package controllers

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"inkwell-backend/internal/apperr"
	"inkwell-backend/internal/storage"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

func GenerateUniqueFilename(filename string) string {
	ext := filepath.Ext(filename)
	return uuid.New().String() + ext
}

// UploadFileHandler accepts a multipart upload, stores the object and returns
// its durable URL. Used for post images and avatar changes.
func UploadFileHandler(c fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return apperr.NewValidation("A file is required")
	}

	src, err := file.Open()
	if err != nil {
		return apperr.NewDependency("Failed to open uploaded file", err)
	}
	defer src.Close()

	buffer := make([]byte, 512)
	n, err := src.Read(buffer)
	if err != nil && err != io.EOF {
		return apperr.NewDependency("Failed to read uploaded file", err)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return apperr.NewDependency("Failed to rewind uploaded file", err)
	}
	mimeType := http.DetectContentType(buffer[:n])

	uniqueFilename := strings.Split(mimeType, "/")[0] + "/" + GenerateUniqueFilename(file.Filename)

	url, err := storage.UploadFile(c.Context(), uniqueFilename, src, file.Size, mimeType)
	if err != nil {
		return err
	}

	return c.JSON(DataResponse[FileResponse]{
		Success: true,
		Data: FileResponse{
			Filename: uniqueFilename,
			Url:      url,
		},
	})
}

// DeleteFileHandler removes an uploaded object by name.
func DeleteFileHandler(c fiber.Ctx) error {
	filename := c.Query("filename")
	if filename == "" {
		return apperr.NewValidation("A filename is required")
	}

	if err := storage.DeleteFile(c.Context(), filename); err != nil {
		return err
	}

	return c.JSON(MessageResponse{Success: true, Message: "File deleted"})
}
