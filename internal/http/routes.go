package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"voicecard/internal/app"
	"voicecard/internal/domain"
	"voicecard/internal/pages"
	"voicecard/internal/services"
	"voicecard/internal/storage"
)

const unlockCookiePrefix = "vc_unlock_"

type API struct {
	app     *app.App
	manager *pages.Manager
	demo    *pages.Demo
	bulk    *pages.Bulk
	gate    *pages.Gate
	files   *storage.FileManager
	assets  storage.AssetStore
	media   MediaProcessor
	unlock  *services.UnlockService
	limiter services.AttemptLimiter
	sheet   *services.PrintSheet
}

// MediaProcessor turns a raw upload on disk into a stored asset.
type MediaProcessor interface {
	ProcessAudio(ctx context.Context, rawPath string) (*domain.AudioAsset, error)
	ProcessImage(ctx context.Context, rawPath string) (*domain.Asset, error)
}

func NewAPI(a *app.App) *API {
	return &API{
		app:     a,
		manager: a.Manager,
		demo:    a.Demo,
		bulk:    a.Bulk,
		gate:    a.Gate,
		files:   a.Files,
		assets:  a.Assets,
		media:   a.Media,
		unlock:  a.Unlock,
		limiter: a.Limiter,
		sheet:   a.Sheet,
	}
}

func registerRoutes(r *gin.Engine, api *API, maxUploadBytes int64) {
	apiGroup := r.Group("/api", NoStore())
	{
		apiGroup.GET("/health", api.handleHealth)

		uploads := apiGroup.Group("", MaxBodySize(2*maxUploadBytes+1<<20))
		uploads.POST("/pages", api.handleCreatePage)
		uploads.PUT("/pages/:code/personalize", api.handlePersonalize)

		apiGroup.GET("/pages/:code", api.handleGetPage)
		apiGroup.POST("/pages/:code/play", api.handlePlay)
		apiGroup.POST("/pages/:code/unlock", api.handleUnlock)
		apiGroup.POST("/demo/init", api.handleDemoInit)

		admin := apiGroup.Group("", AdminOnly(api.app.Config.AdminToken))
		admin.DELETE("/pages/:code", api.handleDeletePage)
		admin.GET("/admin/pages", api.handleListPages)
		admin.PUT("/admin/pages/:code/test", api.handleSetTest)
		admin.POST("/admin/provision", api.handleProvision)
	}

	r.GET("/page/:code", NoStore(), api.handleViewPage)
}

func (a *API) handleHealth(c *gin.Context) {
	respondData(c, http.StatusOK, gin.H{"ok": true})
}

// resolveCode maps user input onto the stored code, keeping the demo code in
// its configured spelling.
func (a *API) resolveCode(raw string) string {
	if a.demo.IsDemo(raw) {
		return a.demo.Code()
	}
	return pages.NormalizeCode(raw)
}

func (a *API) handleCreatePage(c *gin.Context) {
	ctx := c.Request.Context()

	audio, err := a.processAudio(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if audio == nil {
		respondError(c, fmt.Errorf("%w: an audio file is required", domain.ErrValidation))
		return
	}

	image, err := a.processImage(c)
	if err != nil {
		a.removeAsset(ctx, storage.KindAudio, audio.Filename)
		respondError(c, err)
		return
	}

	page, err := a.manager.Create(ctx, pages.CreateInput{
		Audio:               audio,
		Image:               image,
		Title:               c.PostForm("title"),
		Description:         c.PostForm("description"),
		SenderName:          c.PostForm("senderName"),
		RecipientName:       c.PostForm("recipientName"),
		WrittenMessage:      c.PostForm("writtenMessage"),
		Pin:                 c.PostForm("pin"),
		UseImageAsWallpaper: formBool(c.PostForm("useImageAsWallpaper")),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondData(c, http.StatusCreated, page.Public())
}

func (a *API) handlePersonalize(c *gin.Context) {
	ctx := c.Request.Context()
	code := a.resolveCode(c.Param("code"))

	if code == a.demo.Code() {
		if _, err := a.demo.Ensure(ctx); err != nil {
			respondError(c, err)
			return
		}
	}

	// cheap checks before any media work; Personalize re-checks atomically
	current, err := a.manager.Get(ctx, code)
	if err != nil {
		respondError(c, err)
		return
	}
	if current.IsPersonalized {
		respondError(c, fmt.Errorf("%w: %s", domain.ErrAlreadyPersonalized, code))
		return
	}
	if _, err := c.FormFile("audio"); errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		respondError(c, fmt.Errorf("%w: an audio message is required", domain.ErrValidation))
		return
	}

	audio, err := a.processAudio(c)
	if err != nil {
		respondError(c, err)
		return
	}
	image, err := a.processImage(c)
	if err != nil {
		a.removeAsset(ctx, storage.KindAudio, audio.Filename)
		respondError(c, err)
		return
	}

	in := pages.PersonalizeInput{
		Audio:          audio,
		Image:          image,
		Title:          c.PostForm("title"),
		Description:    c.PostForm("description"),
		SenderName:     c.PostForm("senderName"),
		RecipientName:  c.PostForm("recipientName"),
		WrittenMessage: c.PostForm("writtenMessage"),
		Pin:            c.PostForm("pin"),
	}
	if raw, ok := c.GetPostForm("useImageAsWallpaper"); ok {
		v := formBool(raw)
		in.UseImageAsWallpaper = &v
	}

	page, err := a.manager.Personalize(ctx, code, in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, page.Public())
}

func (a *API) handleGetPage(c *gin.Context) {
	page, err := a.gate.Resolve(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	if page.HasPin && !a.unlocked(c, page.Code) {
		page = redact(page)
	}
	respondData(c, http.StatusOK, page.Public())
}

func (a *API) handlePlay(c *gin.Context) {
	ctx := c.Request.Context()
	code := a.resolveCode(c.Param("code"))

	page, err := a.manager.Get(ctx, code)
	if err != nil {
		respondError(c, err)
		return
	}
	if page.HasPin && !a.unlocked(c, code) {
		respondError(c, fmt.Errorf("%w: unlock the page first", domain.ErrInvalidPin))
		return
	}

	result, err := a.manager.RecordPlay(ctx, code)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, result)
}

func (a *API) handleUnlock(c *gin.Context) {
	ctx := c.Request.Context()
	code := a.resolveCode(c.Param("code"))

	var payload struct {
		Pin string `json:"pin" form:"pin" binding:"required"`
	}
	if err := c.ShouldBind(&payload); err != nil {
		respondError(c, fmt.Errorf("%w: pin is required", domain.ErrValidation))
		return
	}

	client := c.ClientIP()
	if err := a.limiter.Allow(ctx, code, client); err != nil {
		respondError(c, err)
		return
	}

	page, err := a.manager.VerifyPin(ctx, code, payload.Pin)
	if errors.Is(err, domain.ErrInvalidPin) {
		if ferr := a.limiter.Fail(ctx, code, client); ferr != nil {
			a.app.Logger.Warn("record pin attempt", "code", code, "error", ferr)
		}
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if err := a.limiter.Reset(ctx, code, client); err != nil {
		a.app.Logger.Warn("reset pin attempts", "code", code, "error", err)
	}

	token, expiresAt := a.unlock.Issue(page.Code)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(unlockCookiePrefix+page.Code, token, int(a.unlock.TTL().Seconds()), "/", "", a.app.Config.IsProduction(), true)
	respondData(c, http.StatusOK, gin.H{"unlocked": true, "expiresAt": expiresAt.UTC()})
}

func (a *API) handleDemoInit(c *gin.Context) {
	page, err := a.demo.GetOrCreate(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, page.Public())
}

func (a *API) handleDeletePage(c *gin.Context) {
	code := a.resolveCode(c.Param("code"))
	deleted, err := a.manager.Delete(c.Request.Context(), code)
	if err != nil {
		respondError(c, err)
		return
	}
	if !deleted {
		respondError(c, fmt.Errorf("%w: %s", domain.ErrNotFound, code))
		return
	}
	respondData(c, http.StatusOK, gin.H{"deleted": true, "code": code})
}

func (a *API) handleListPages(c *gin.Context) {
	all, err := a.manager.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]domain.AudioPage, 0, len(all))
	for _, p := range all {
		out = append(out, p.Public())
	}
	respondData(c, http.StatusOK, out)
}

func (a *API) handleSetTest(c *gin.Context) {
	var payload struct {
		IsTest *bool `json:"isTest" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, fmt.Errorf("%w: isTest is required", domain.ErrValidation))
		return
	}

	page, err := a.manager.SetTest(c.Request.Context(), a.resolveCode(c.Param("code")), *payload.IsTest)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, page.Public())
}

func (a *API) handleProvision(c *gin.Context) {
	var payload struct {
		Quantity int `json:"quantity" form:"quantity"`
	}
	if err := c.ShouldBind(&payload); err != nil {
		respondError(c, fmt.Errorf("%w: invalid payload", domain.ErrValidation))
		return
	}
	if payload.Quantity == 0 {
		if raw := c.Query("quantity"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				respondError(c, fmt.Errorf("%w: quantity must be a number", domain.ErrValidation))
				return
			}
			payload.Quantity = n
		}
	}

	created, err := a.bulk.Provision(c.Request.Context(), payload.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}

	if strings.EqualFold(c.Query("format"), "pdf") {
		c.Header("Content-Type", "application/pdf")
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="voicecard-%s.pdf"`, time.Now().UTC().Format("20060102-150405")))
		c.Status(http.StatusCreated)
		if err := a.sheet.Write(c.Writer, created); err != nil {
			_ = c.Error(err)
		}
		return
	}

	out := make([]domain.AudioPage, 0, len(created))
	for _, p := range created {
		out = append(out, p.Public())
	}
	respondData(c, http.StatusCreated, out)
}

// processAudio returns nil without error when the request has no audio part.
func (a *API) processAudio(c *gin.Context) (*domain.AudioAsset, error) {
	raw, err := a.saveUpload(c, "audio")
	if err != nil || raw == "" {
		return nil, err
	}
	return a.media.ProcessAudio(c.Request.Context(), raw)
}

func (a *API) processImage(c *gin.Context) (*domain.Asset, error) {
	raw, err := a.saveUpload(c, "image")
	if err != nil || raw == "" {
		return nil, err
	}
	return a.media.ProcessImage(c.Request.Context(), raw)
}

func (a *API) saveUpload(c *gin.Context, field string) (string, error) {
	fileHeader, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return "", nil
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", err
		}
		return "", fmt.Errorf("%w: unreadable %s upload", domain.ErrValidation, field)
	}

	upload, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("open %s upload: %w", field, err)
	}
	defer upload.Close()

	return a.files.SaveUpload(upload, fileHeader.Filename, field)
}

func (a *API) removeAsset(ctx context.Context, kind storage.AssetKind, filename string) {
	if err := a.assets.Remove(ctx, kind, filename); err != nil {
		a.app.Logger.Warn("remove asset", "kind", kind, "filename", filename, "error", err)
	}
}

func (a *API) unlocked(c *gin.Context, code string) bool {
	token, err := c.Cookie(unlockCookiePrefix + code)
	if err != nil {
		return false
	}
	return a.unlock.Validate(code, token)
}

// redact hides the content of a PIN protected page from locked viewers.
func redact(page domain.AudioPage) domain.AudioPage {
	page.AudioURL = ""
	page.AudioFilename = ""
	page.ImageURL = ""
	page.ImageFilename = ""
	page.WrittenMessage = ""
	return page
}

func formBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}
