package handler

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	"filedepot/internal/http/middleware"
	"filedepot/internal/model"
	"filedepot/internal/service"
)

// callerID returns the authenticated tenant id. When authentication is
// disabled and no key was sent, the path tenant acts on its own behalf.
func callerID(c *fiber.Ctx) string {
	if v, ok := c.Locals(middleware.TenantIDLocalKey).(string); ok && v != "" {
		return v
	}
	return c.Params("tenantID")
}

// ClientConfig reports the parameters clients need to drive the chunking
// protocol.
func ClientConfig(storageSvc service.StorageService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"chunk_size_bytes": storageSvc.ChunkSize(),
		})
	}
}

// UploadChunk stores the raw request body as one chunk of the path tenant.
func UploadChunk(storageSvc service.StorageService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// With StreamRequestBody enabled the body arrives as a stream; smaller
		// bodies come pre-buffered.
		var body io.Reader = c.Request().BodyStream()
		if body == nil {
			body = bytes.NewReader(c.Body())
		}
		chunkID, size, err := storageSvc.SaveChunk(
			c.UserContext(), callerID(c), c.Params("tenantID"), body)
		if err != nil {
			return serviceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"chunk_id": chunkID,
			"size":     size,
		})
	}
}

// DownloadChunk streams one chunk back.
func DownloadChunk(storageSvc service.StorageService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rc, err := storageSvc.GetChunk(
			c.UserContext(), callerID(c), c.Params("tenantID"), c.Params("chunkID"))
		if err != nil {
			return serviceError(c, err)
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
		// fasthttp closes the stream when it implements io.Closer.
		return c.SendStream(rc)
	}
}

type commitFileRequest struct {
	OriginalFilename string   `json:"original_filename"`
	ContentType      string   `json:"content_type"`
	FileSize         int64    `json:"file_size"`
	ChunkIDs         []string `json:"chunk_ids"`
}

// CommitFile publishes the metadata record completing a chunked upload.
func CommitFile(storageSvc service.StorageService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req commitFileRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		meta, err := storageSvc.CommitFile(c.UserContext(), callerID(c), c.Params("tenantID"), &model.FileMetadata{
			OriginalFilename: req.OriginalFilename,
			ContentType:      req.ContentType,
			FileSize:         req.FileSize,
			ChunkIDs:         req.ChunkIDs,
		})
		if err != nil {
			return serviceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(meta)
	}
}

// GetFile returns one metadata record.
func GetFile(storageSvc service.StorageService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		meta, err := storageSvc.GetFile(
			c.UserContext(), callerID(c), c.Params("tenantID"), c.Params("fileID"))
		if err != nil {
			return serviceError(c, err)
		}
		return c.JSON(meta)
	}
}

// ListFiles returns the tenant's metadata records.
func ListFiles(storageSvc service.StorageService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		items, err := storageSvc.ListFiles(c.UserContext(), callerID(c), c.Params("tenantID"))
		if err != nil {
			return serviceError(c, err)
		}
		return c.JSON(items)
	}
}

// DeleteFile removes one file. Deleting an absent file is a no-op that still
// reports 204, so retried deletes are safe.
func DeleteFile(storageSvc service.StorageService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, err := storageSvc.DeleteFile(
			c.UserContext(), callerID(c), c.Params("tenantID"), c.Params("fileID")); err != nil {
			return serviceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// DeleteAllFiles removes every file of the tenant.
func DeleteAllFiles(storageSvc service.StorageService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		n, err := storageSvc.DeleteAllFiles(c.UserContext(), callerID(c), c.Params("tenantID"))
		if err != nil {
			return serviceError(c, err)
		}
		return c.JSON(fiber.Map{"deleted": n})
	}
}

type createTenantRequest struct {
	DisplayName string `json:"display_name"`
}

// CreateTenant creates a sub-tenant under the path tenant.
func CreateTenant(tenantSvc service.TenantService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req createTenantRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		created, err := tenantSvc.CreateSubTenant(
			c.UserContext(), callerID(c), c.Params("tenantID"), req.DisplayName)
		if err != nil {
			return serviceError(c, err)
		}
		// The API key appears exactly once, in this response.
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":                  created.ID,
			"api_key":             created.APIKey,
			"display_name":        created.DisplayName,
			"storage_limit_bytes": created.StorageLimitBytes,
		})
	}
}

type updateLimitRequest struct {
	StorageLimitBytes int64 `json:"storage_limit_bytes"`
}

// UpdateTenantLimit changes the path tenant's storage limit.
func UpdateTenantLimit(tenantSvc service.TenantService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req updateLimitRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		if err := tenantSvc.UpdateStorageLimit(
			c.UserContext(), callerID(c), c.Params("tenantID"), req.StorageLimitBytes); err != nil {
			return serviceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// DeleteTenant removes the path tenant and its whole subtree.
func DeleteTenant(tenantSvc service.TenantService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := tenantSvc.Delete(c.UserContext(), callerID(c), c.Params("tenantID")); err != nil {
			return serviceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GetUsage reports the tenant's storage accounting.
func GetUsage(tenantSvc service.TenantService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		report, err := tenantSvc.Usage(c.UserContext(), callerID(c), c.Params("tenantID"))
		if err != nil {
			return serviceError(c, err)
		}
		return c.JSON(report)
	}
}

// HealthCheck verifies dependencies. db may be nil when the metadata backend
// does not use Postgres.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
			}
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe is the bare process-up probe.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// RegisterRoutes attaches the API surface to the app. Handlers stay thin;
// access control and quota live in the services.
func RegisterRoutes(app *fiber.App, db *sql.DB, storageSvc service.StorageService, tenantSvc service.TenantService, auth *middleware.Authenticator) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	// Clients need the chunk size before they hold a key of their own.
	app.Get("/api/config", ClientConfig(storageSvc))

	api := app.Group("/api", auth.Handler())

	api.Post("/:tenantID/chunks", UploadChunk(storageSvc))
	api.Get("/:tenantID/chunks/:chunkID", DownloadChunk(storageSvc))

	api.Post("/:tenantID/files", CommitFile(storageSvc))
	api.Get("/:tenantID/files", ListFiles(storageSvc))
	api.Delete("/:tenantID/files", DeleteAllFiles(storageSvc))
	api.Get("/:tenantID/files/:fileID", GetFile(storageSvc))
	api.Delete("/:tenantID/files/:fileID", DeleteFile(storageSvc))

	api.Post("/:tenantID/tenants", CreateTenant(tenantSvc))
	api.Put("/:tenantID/limit", UpdateTenantLimit(tenantSvc))
	api.Get("/:tenantID/usage", GetUsage(tenantSvc))
	api.Delete("/:tenantID", DeleteTenant(tenantSvc))
}
