// Package persona renders the coach persona prompts and the template fallback reply.
//
// Templates use the Liquid language. Each can be overridden by a file in the persona
// directory: system.liquid, user.liquid and fallback.liquid.
package persona

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/osteele/liquid"

	"github.com/BTreeMap/Shanbot/internal/analytics"
)

// Template file names inside a persona directory.
const (
	SystemFile   = "system.liquid"
	UserFile     = "user.liquid"
	FallbackFile = "fallback.liquid"
)

// Templates holds the raw template sources.
type Templates struct {
	System   string
	User     string
	Fallback string
}

const defaultSystem = `You are {{ bot_name }}, an online fitness coach chatting with {{ ig_username | handle | default: "a new follower" }} on Instagram.
Write like a real person texting: short, warm, casual Australian tone, no emojis overload, never say you are an AI.
Ask at most one question per reply and keep replies under 3 short sentences.
{% if responder_category == "No Responder" or responder_category == "Low Responder" %}They are new to the chat: build rapport before mentioning coaching.
{% else %}They engage well: it is fine to bring up coaching if it fits naturally.
{% endif %}{% if topics.size > 0 %}Topics they care about: {{ topics | join: ", " }}.
{% endif %}{% if signed_up %}They have already signed up. Focus on onboarding and support.
{% elsif coaching_inquiries > 0 and signup_url != "" %}They asked about coaching before. If they ask again, share {{ signup_url }}.
{% endif %}`

const defaultUser = `{% if history.size > 0 %}Recent conversation:
{% for line in history %}{{ line.speaker }}: {{ line.text }}
{% endfor %}
{% endif %}Latest message from {{ ig_username | handle | default: "them" }}: {{ message }}
Reply as {{ bot_name }}.`

const defaultFallback = `Hey{% if ig_username != "" %} {{ ig_username | handle }}{% endif %}! Thanks for the message, just jumping between clients. I'll get back to you properly soon.`

// DefaultTemplates returns the built-in persona.
func DefaultTemplates() Templates {
	return Templates{System: defaultSystem, User: defaultUser, Fallback: defaultFallback}
}

// LoadTemplates reads overrides from dir on top of the defaults. Missing files keep the default.
func LoadTemplates(dir string) (Templates, error) {
	t := DefaultTemplates()
	if dir == "" {
		return t, nil
	}
	for name, dst := range map[string]*string{SystemFile: &t.System, UserFile: &t.User, FallbackFile: &t.Fallback} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return t, fmt.Errorf("read persona template %s: %w", name, err)
		}
		*dst = string(data)
		slog.Debug("persona.LoadTemplates: override loaded", "file", name)
	}
	return t, nil
}

// Line is one earlier message shown in the user prompt.
type Line struct {
	Speaker string
	Text    string
}

// Context is everything a persona template can reference.
type Context struct {
	BotName    string
	IGUsername string
	Message    string
	SignupURL  string
	History    []Line
	Engagement analytics.Engagement
}

func (c Context) bindings() liquid.Bindings {
	history := make([]map[string]any, 0, len(c.History))
	for _, l := range c.History {
		history = append(history, map[string]any{"speaker": l.Speaker, "text": l.Text})
	}
	e := c.Engagement
	category := e.ResponderCategory
	if category == "" {
		category = analytics.ResponderCategory(e.UserMessages)
	}
	topics := e.Topics
	if topics == nil {
		topics = []string{}
	}
	return liquid.Bindings{
		"bot_name":           c.BotName,
		"ig_username":        c.IGUsername,
		"message":            c.Message,
		"signup_url":         c.SignupURL,
		"history":            history,
		"responder_category": category,
		"topics":             topics,
		"coaching_inquiries": e.CoachingInquiries,
		"signed_up":          e.SignedUp,
		"total_messages":     e.TotalMessages,
	}
}

// Renderer holds the parsed persona templates.
type Renderer struct {
	system   *liquid.Template
	user     *liquid.Template
	fallback *liquid.Template
}

// NewRenderer parses t. A syntax error in any template is returned with its name.
func NewRenderer(t Templates) (*Renderer, error) {
	engine := liquid.NewEngine()
	engine.RegisterFilter("handle", func(s string) string {
		s = strings.TrimSpace(strings.TrimPrefix(s, "@"))
		if s == "" {
			return ""
		}
		return "@" + s
	})

	r := &Renderer{}
	for _, p := range []struct {
		name string
		src  string
		dst  **liquid.Template
	}{
		{SystemFile, t.System, &r.system},
		{UserFile, t.User, &r.user},
		{FallbackFile, t.Fallback, &r.fallback},
	} {
		tpl, err := engine.ParseString(p.src)
		if err != nil {
			slog.Error("persona.NewRenderer: parse failed", "template", p.name, "error", err)
			return nil, fmt.Errorf("parse %s: %w", p.name, err)
		}
		*p.dst = tpl
	}
	return r, nil
}

// SystemPrompt renders the system instructions.
func (r *Renderer) SystemPrompt(c Context) (string, error) {
	return render(r.system, SystemFile, c)
}

// UserPrompt renders the user turn sent to the model.
func (r *Renderer) UserPrompt(c Context) (string, error) {
	return render(r.user, UserFile, c)
}

// Fallback renders the reply used when no AI reply is available. It never returns an empty string.
func (r *Renderer) Fallback(c Context) string {
	out, err := render(r.fallback, FallbackFile, c)
	if err != nil || out == "" {
		slog.Warn("Renderer.Fallback: template failed, using static reply", "error", err)
		return "Hey! Thanks for the message, I'll get back to you soon."
	}
	return out
}

func render(tpl *liquid.Template, name string, c Context) (string, error) {
	out, err := tpl.RenderString(c.bindings())
	if err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(out), nil
}
