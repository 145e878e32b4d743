package handlers

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"starterkit/api/internal/auth"
	"starterkit/api/internal/middleware"
)

// Page shells only carry the title and the signed-in user; the client app
// renders the rest. Access is decided by the edge middleware before these run.
var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body data-page="{{.Page}}"{{with .User}} data-user-id="{{.ID}}"{{end}}>
<h1>{{.Title}}</h1>
{{with .User}}<p>Signed in as {{if .Name}}{{.Name}}{{else}}{{.Email}}{{end}}</p>{{end}}
{{with .Error}}<p role="alert">{{.}}</p>{{end}}
</body>
</html>
`))

type page struct {
	path  string
	name  string
	title string
}

var pages = []page{
	{"/", "home", "Home"},
	{"/about", "about", "About"},
	{"/privacy", "privacy", "Privacy"},
	{"/terms", "terms", "Terms"},
	{"/login", "login", "Sign in"},
	{"/register", "register", "Create account"},
	{"/dashboard", "dashboard", "Dashboard"},
	{"/profile", "profile", "Profile"},
	{"/settings", "settings", "Settings"},
}

func (h HandlerSet) registerPages(engine *gin.Engine) {
	engine.SetHTMLTemplate(pageTemplate)
	for _, p := range pages {
		engine.GET(p.path, h.renderPage(p))
	}
}

func (h HandlerSet) renderPage(p page) gin.HandlerFunc {
	return func(c *gin.Context) {
		data := gin.H{
			"Page":  p.name,
			"Title": p.title,
			"Error": c.Query("error"),
		}
		if claims, ok := middleware.Claims(c); ok {
			user := auth.Session(claims).User
			data["User"] = &user
		}
		c.HTML(http.StatusOK, "page", data)
	}
}
