package core

import "strings"

type Capability string

const (
	CapabilityTextChat        Capability = "text-chat"
	CapabilityVision          Capability = "vision"
	CapabilityImageGeneration Capability = "image-generation"
)

// ImageGenerationKeywords trigger image generation when found anywhere in the
// input, case-insensitively.
var ImageGenerationKeywords = []string{"image generate", "create image", "draw", "picture of"}

type RouteInput struct {
	Text     string
	HasImage bool
}

type Predicate func(RouteInput) bool

type Route struct {
	Name       string
	Match      Predicate
	Capability Capability
}

// Router picks the capability of the first matching route, or the fallback.
type Router struct {
	routes   []Route
	fallback Capability
}

func NewRouter(fallback Capability, routes ...Route) *Router {
	return &Router{routes: routes, fallback: fallback}
}

func DefaultRouter() *Router {
	return NewRouter(CapabilityTextChat,
		Route{Name: "image-keywords", Match: ContainsAnyKeyword(ImageGenerationKeywords...), Capability: CapabilityImageGeneration},
		Route{Name: "image-attachment", Match: HasImageAttachment, Capability: CapabilityVision},
	)
}

func (r *Router) Route(in RouteInput) Capability {
	for _, route := range r.routes {
		if route.Match(in) {
			return route.Capability
		}
	}
	return r.fallback
}

func ContainsAnyKeyword(keywords ...string) Predicate {
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	return func(in RouteInput) bool {
		text := strings.ToLower(in.Text)
		for _, k := range lowered {
			if strings.Contains(text, k) {
				return true
			}
		}
		return false
	}
}

func HasImageAttachment(in RouteInput) bool {
	return in.HasImage
}
