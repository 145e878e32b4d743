package auth

import (
	"net/url"
	"strings"
)

// Category is the access class of a request path.
type Category string

const (
	CategoryPublic    Category = "public"
	CategoryAPI       Category = "api"
	CategoryAuthPage  Category = "auth-page"
	CategoryProtected Category = "protected"
)

type Action string

const (
	ActionAllow    Action = "allow"
	ActionRedirect Action = "redirect"
)

// Routes holds the static lists a path is matched against. Matching order is
// public, API, auth pages; anything else is protected.
type Routes struct {
	PublicExact    []string
	PublicPrefixes []string
	APIPrefixes    []string
	AuthPages      []string
}

func DefaultRoutes() Routes {
	return Routes{
		PublicExact:    []string{"/", "/about", "/privacy", "/terms", "/healthz", "/metrics", "/favicon.ico", "/robots.txt"},
		PublicPrefixes: []string{"/static/", "/assets/"},
		APIPrefixes:    []string{"/api/"},
		AuthPages:      []string{"/login", "/register"},
	}
}

// Classify puts path into exactly one category.
func (r Routes) Classify(path string) Category {
	path = normalizePath(path)

	if contains(r.PublicExact, path) || hasAnyPrefix(path, r.PublicPrefixes) {
		return CategoryPublic
	}
	if hasAnyPrefix(path, r.APIPrefixes) {
		return CategoryAPI
	}
	if contains(r.AuthPages, path) {
		return CategoryAuthPage
	}
	return CategoryProtected
}

type Decision struct {
	Category Category
	Action   Action
	Location string
}

// Decide applies the access table to a request target. rawQuery is carried into
// the login callback so the user lands where they were headed.
func (r Routes) Decide(pages Pages, path string, rawQuery string, authenticated bool) Decision {
	category := r.Classify(path)
	d := Decision{Category: category, Action: ActionAllow}

	switch category {
	case CategoryAuthPage:
		if authenticated {
			d.Action = ActionRedirect
			d.Location = pages.Landing
		}
	case CategoryProtected:
		if !authenticated {
			d.Action = ActionRedirect
			d.Location = LoginRedirect(pages.SignIn, path, rawQuery)
		}
	}
	return d
}

// LoginRedirect builds <signIn>?callbackUrl=<path[?query]>.
func LoginRedirect(signIn string, path string, rawQuery string) string {
	target := path
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return signIn + "?callbackUrl=" + url.QueryEscape(target)
}

// SafeCallback accepts only same-site relative paths, falling back otherwise.
func SafeCallback(callback string, fallback string) string {
	if callback == "" || !strings.HasPrefix(callback, "/") || strings.HasPrefix(callback, "//") || strings.HasPrefix(callback, "/\\") {
		return fallback
	}
	return callback
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return "/"
		}
	}
	return path
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// hasAnyPrefix treats "/api" like "/api/" so a prefix also covers its root.
func hasAnyPrefix(path string, prefixes []string) bool {
	path += "/"
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
