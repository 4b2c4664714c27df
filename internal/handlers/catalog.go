package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"muster/api/internal/media/sniffer"
	"muster/api/internal/middleware"
	"muster/api/internal/models"
	"muster/api/internal/service"
)

// catalogCodec converts between a catalog model and its request and
// response bodies. C is the create body, P the patch body.
type catalogCodec[M models.CatalogItem, C any, P any] struct {
	decode func(req C) M
	patch  func(req P) func(M) error
	encode func(item M) any
}

type catalogHandler[M models.CatalogItem, C any, P any] struct {
	log   zerolog.Logger
	svc   *service.CatalogService[M]
	codec catalogCodec[M, C, P]
}

func registerCatalog[M models.CatalogItem, C any, P any](
	group *gin.RouterGroup,
	log zerolog.Logger,
	svc *service.CatalogService[M],
	codec catalogCodec[M, C, P],
) {
	h := catalogHandler[M, C, P]{log: log, svc: svc, codec: codec}

	group.GET("", h.list)
	group.POST("", h.create)
	group.GET("/:id", h.get)
	group.PATCH("/:id", h.update)
	group.DELETE("/:id", h.delete)
	group.PUT("/:id/artwork", h.putArtwork)
	group.GET("/:id/artwork", h.getArtwork)
}

func (h catalogHandler[M, C, P]) list(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)
	items, err := h.svc.FindMany(c.Request.Context(), identity)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	resp := make([]any, 0, len(items))
	for _, item := range items {
		resp = append(resp, h.codec.encode(item))
	}
	c.JSON(http.StatusOK, gin.H{"items": resp})
}

func (h catalogHandler[M, C, P]) get(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)
	item, err := h.svc.FindOne(c.Request.Context(), c.Param("id"), identity)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, h.codec.encode(item))
}

func (h catalogHandler[M, C, P]) create(c *gin.Context) {
	var req C
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	identity, _ := middleware.CurrentIdentity(c)
	item, err := h.svc.Create(c.Request.Context(), h.codec.decode(req), identity)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, h.codec.encode(item))
}

func (h catalogHandler[M, C, P]) update(c *gin.Context) {
	var req P
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	identity, _ := middleware.CurrentIdentity(c)
	item, err := h.svc.Update(c.Request.Context(), c.Param("id"), h.codec.patch(req), identity)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, h.codec.encode(item))
}

func (h catalogHandler[M, C, P]) delete(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), identity); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// multipartOverhead leaves room for form boundaries and headers around the
// artwork file.
const multipartOverhead = 64 << 10

func (h catalogHandler[M, C, P]) putArtwork(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, service.MaxArtworkBytes+multipartOverhead)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file_too_large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_required"})
		return
	}
	defer file.Close()

	identity, _ := middleware.CurrentIdentity(c)
	item, err := h.svc.UploadArtwork(c.Request.Context(), c.Param("id"), identity, file, sniffer.MimeTypeFromHTTP(http.Header(header.Header)))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, h.codec.encode(item))
}

func (h catalogHandler[M, C, P]) getArtwork(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)
	url, err := h.svc.ArtworkURL(c.Request.Context(), c.Param("id"), identity)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

type catalogMetaResponse struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	CreatedBy  string            `json:"createdBy"`
	Visibility models.Visibility `json:"visibility"`
	HasArtwork bool              `json:"hasArtwork"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

func newCatalogMetaResponse(meta *models.CatalogMeta) catalogMetaResponse {
	return catalogMetaResponse{
		ID:         meta.ID,
		Name:       meta.Name,
		CreatedBy:  meta.CreatedBy,
		Visibility: meta.Visibility,
		HasArtwork: meta.ArtworkKey != nil,
		CreatedAt:  meta.CreatedAt,
		UpdatedAt:  meta.UpdatedAt,
	}
}

type gameSystemRequest struct {
	Name       string `json:"name" binding:"required"`
	Publisher  string `json:"publisher"`
	Edition    string `json:"edition"`
	Visibility string `json:"visibility"`
}

type gameSystemPatch struct {
	Name       *string `json:"name"`
	Publisher  *string `json:"publisher"`
	Edition    *string `json:"edition"`
	Visibility *string `json:"visibility"`
}

type gameSystemResponse struct {
	catalogMetaResponse
	Publisher string `json:"publisher"`
	Edition   string `json:"edition"`
}

var gameSystemCodec = catalogCodec[*models.GameSystem, gameSystemRequest, gameSystemPatch]{
	decode: func(req gameSystemRequest) *models.GameSystem {
		return &models.GameSystem{
			CatalogMeta: models.CatalogMeta{Name: req.Name, Visibility: models.Visibility(req.Visibility)},
			Publisher:   req.Publisher,
			Edition:     req.Edition,
		}
	},
	patch: func(req gameSystemPatch) func(*models.GameSystem) error {
		return func(gs *models.GameSystem) error {
			patchMeta(&gs.CatalogMeta, req.Name, req.Visibility)
			if req.Publisher != nil {
				gs.Publisher = *req.Publisher
			}
			if req.Edition != nil {
				gs.Edition = *req.Edition
			}
			return nil
		}
	},
	encode: func(gs *models.GameSystem) any {
		return gameSystemResponse{
			catalogMetaResponse: newCatalogMetaResponse(gs.Meta()),
			Publisher:           gs.Publisher,
			Edition:             gs.Edition,
		}
	},
}

type factionRequest struct {
	Name         string  `json:"name" binding:"required"`
	GameSystemID string  `json:"gameSystemId" binding:"required"`
	ParentID     *string `json:"parentId"`
	Visibility   string  `json:"visibility"`
}

// factionPatch clears the parent when parentId is an empty string.
type factionPatch struct {
	Name         *string `json:"name"`
	GameSystemID *string `json:"gameSystemId"`
	ParentID     *string `json:"parentId"`
	Visibility   *string `json:"visibility"`
}

type factionResponse struct {
	catalogMetaResponse
	GameSystemID string  `json:"gameSystemId"`
	ParentID     *string `json:"parentId"`
}

var factionCodec = catalogCodec[*models.Faction, factionRequest, factionPatch]{
	decode: func(req factionRequest) *models.Faction {
		return &models.Faction{
			CatalogMeta:  models.CatalogMeta{Name: req.Name, Visibility: models.Visibility(req.Visibility)},
			GameSystemID: req.GameSystemID,
			ParentID:     req.ParentID,
		}
	},
	patch: func(req factionPatch) func(*models.Faction) error {
		return func(f *models.Faction) error {
			patchMeta(&f.CatalogMeta, req.Name, req.Visibility)
			if req.GameSystemID != nil {
				f.GameSystemID = *req.GameSystemID
			}
			if req.ParentID != nil {
				parent := *req.ParentID
				f.ParentID = &parent
			}
			return nil
		}
	},
	encode: func(f *models.Faction) any {
		return factionResponse{
			catalogMetaResponse: newCatalogMetaResponse(f.Meta()),
			GameSystemID:        f.GameSystemID,
			ParentID:            f.ParentID,
		}
	},
}

func patchMeta(meta *models.CatalogMeta, name, visibility *string) {
	if name != nil {
		meta.Name = *name
	}
	if visibility != nil {
		meta.Visibility = models.Visibility(*visibility)
	}
}
