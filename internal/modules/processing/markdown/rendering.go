// Package markdown renders journal entries to standalone HTML and packs
// the whole journal into a portable markdown bundle. Nothing a person
// writes here should ever be locked in.
package markdown

import (
	"bytes"
	_ "embed"
	"html/template"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

//go:embed assets/markdown/markdown.css
var markdownBaseStyle string

//go:embed assets/markdown/theme/paper.css
var markdownThemePaper string

//go:embed assets/markdown/theme/night.css
var markdownThemeNight string

// DocumentOptions controls the standalone HTML page wrapped around a
// rendered entry.
type DocumentOptions struct {
	Title  string
	Info   string
	Footer string
	Theme  string
}

// Hard wraps are deliberate: entries are typed line by line on a phone
// keyboard, and a single newline must stay a line break.
var markdownEngine = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Strikethrough,
		extension.TaskList,
		extension.Linkify,
		extension.Typographer,
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithHardWraps(),
		htmlrenderer.WithXHTML(),
		// Entries are rendered only for their author, so raw HTML
		// passes through instead of being stripped.
		htmlrenderer.WithUnsafe(),
	),
)

var (
	spoilerPattern       = regexp.MustCompile(`\|\|([\s\S]+?)\|\|`)
	imageTagRegex        = regexp.MustCompile(`(?is)<img\s+[^>]*>`)
	imageAttrRegex       = regexp.MustCompile(`([a-zA-Z:_-]+)\s*=\s*"([^"]*)"`)
	figureParagraphRegex = regexp.MustCompile(`(?is)<p>\s*(<figure>[\s\S]*?</figure>)\s*</p>`)
)

// RenderContent converts an entry's markdown to an HTML fragment.
// ||spoiler|| spans stay blurred until the reader hovers, and images with
// a "!"-prefixed alt become captioned figures.
func RenderContent(markdownText string) string {
	text := strings.TrimSpace(markdownText)
	if text == "" {
		return ""
	}

	text = replaceSpoiler(text)

	var out bytes.Buffer
	if err := markdownEngine.Convert([]byte(text), &out); err != nil {
		return template.HTMLEscapeString(text)
	}

	return rewriteImages(out.String())
}

// RenderDocument wraps a rendered fragment in a complete HTML document.
// The page carries no external scripts or stylesheets, so an exported
// entry stays readable offline and loads nothing from a CDN.
func RenderDocument(html string, options DocumentOptions) string {
	var b strings.Builder
	b.Grow(4096)

	title := template.HTMLEscapeString(strings.TrimSpace(options.Title))
	if title == "" {
		title = "Journal"
	}

	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n")
	b.WriteString("  <head>\n")
	b.WriteString("    <meta charset=\"UTF-8\" />\n")
	b.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\" />\n")
	b.WriteString("    <meta name=\"referrer\" content=\"no-referrer\" />\n")
	b.WriteString("    <style>\n")
	b.WriteString(markdownBaseStyle)
	b.WriteString("\n")
	b.WriteString(resolveThemeStyle(options.Theme))
	b.WriteString("\n    </style>\n")
	b.WriteString("    <title>")
	b.WriteString(title)
	b.WriteString("</title>\n")
	b.WriteString("  </head>\n\n")
	b.WriteString("  <body class=\"markdown-body\">\n")

	if info := strings.TrimSpace(options.Info); info != "" {
		b.WriteString("    <p class=\"entry-info\">")
		b.WriteString(template.HTMLEscapeString(info))
		b.WriteString("</p>\n")
	}

	b.WriteString("    <article>\n      <h1>")
	b.WriteString(title)
	b.WriteString("</h1>\n")
	b.WriteString(html)
	b.WriteString("\n    </article>\n")

	if footer := strings.TrimSpace(options.Footer); footer != "" {
		b.WriteString("    <footer>")
		b.WriteString(template.HTMLEscapeString(footer))
		b.WriteString("</footer>\n")
	}

	b.WriteString("  </body>\n</html>")

	return b.String()
}

func resolveThemeStyle(theme string) string {
	switch strings.ToLower(strings.TrimSpace(theme)) {
	case "night":
		return markdownThemeNight
	default:
		return markdownThemePaper
	}
}

func replaceSpoiler(text string) string {
	return spoilerPattern.ReplaceAllStringFunc(text, func(raw string) string {
		match := spoilerPattern.FindStringSubmatch(raw)
		if len(match) < 2 {
			return raw
		}
		content := template.HTMLEscapeString(strings.TrimSpace(match[1]))
		return `<span class="spoiler">` + content + `</span>`
	})
}

func rewriteImages(html string) string {
	processed := imageTagRegex.ReplaceAllStringFunc(html, func(tag string) string {
		attrs := parseImageAttrs(tag)
		src := strings.TrimSpace(attrs["src"])
		if src == "" {
			return tag
		}

		alt := strings.TrimSpace(attrs["alt"])
		title := strings.TrimSpace(attrs["title"])
		escapedSrc := template.HTMLEscapeString(src)

		if strings.HasPrefix(alt, "!") {
			caption := strings.TrimSpace(strings.TrimPrefix(alt, "!"))
			if caption == "" {
				caption = title
			}
			caption = template.HTMLEscapeString(caption)
			return `<figure><img src="` + escapedSrc + `"/><figcaption>` + caption + `</figcaption></figure>`
		}

		return `<img src="` + escapedSrc + `"/>`
	})
	return figureParagraphRegex.ReplaceAllString(processed, "$1")
}

func parseImageAttrs(tag string) map[string]string {
	attrs := make(map[string]string)
	matches := imageAttrRegex.FindAllStringSubmatch(tag, -1)
	for _, item := range matches {
		if len(item) < 3 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(item[1]))
		if key == "" {
			continue
		}
		attrs[key] = item[2]
	}
	return attrs
}
