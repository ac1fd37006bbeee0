package http

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"voicecard/internal/domain"
	"voicecard/internal/pages"
)

//go:embed templates/*.html
var viewFS embed.FS

var viewFuncs = template.FuncMap{
	"remaining": func(p domain.AudioPage) int {
		if n := p.MaxPlays - p.PlayCount; n > 0 {
			return n
		}
		return 0
	},
}

type viewData struct {
	Title string
	Page  domain.AudioPage
}

// handleViewPage renders one of four views: the live card, the PIN prompt
// for a locked live card, the destroyed notice, or the not-found page.
func (a *API) handleViewPage(c *gin.Context) {
	decision, err := a.gate.Decide(c.Request.Context(), c.Param("code"))
	if err != nil {
		_ = c.Error(err)
		c.HTML(http.StatusInternalServerError, "deleted.html", viewData{Title: "Something went wrong"})
		return
	}

	switch decision.State {
	case pages.StateDeleted:
		c.HTML(http.StatusNotFound, "deleted.html", viewData{Title: "Card not found"})
	case pages.StateDestroyed:
		c.HTML(http.StatusOK, "destroyed.html", viewData{Title: "This message is gone"})
	default:
		page := decision.Page.Public()
		if page.HasPin && !a.unlocked(c, page.Code) {
			c.HTML(http.StatusOK, "pin.html", viewData{Title: page.Title, Page: redact(page)})
			return
		}
		c.HTML(http.StatusOK, "page.html", viewData{Title: page.Title, Page: page})
	}
}
