package render

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/jaytaylor/html2text"
	"github.com/jhillyerd/enmime"
	"github.com/mattn/go-runewidth"

	"github.com/ternmail/tern/internal/domain"
	"github.com/ternmail/tern/internal/store"
)

// blockedURL replaces remote image references when the policy is Block.
const blockedURL = "tern-blocked://remote"

// RasterizeFunc renders prepared HTML into an ordered tile set. The actual
// bitmap backend is injected; the MIME renderer owns everything up to the
// prepared HTML it hands over.
type RasterizeFunc func(html string, cfg TileConfig) ([][]byte, error)

// MIMERenderer implements Renderer over raw RFC 5322 bodies.
type MIMERenderer struct {
	Rasterize RasterizeFunc
}

func (r *MIMERenderer) Reflow(raw []byte, widthCols int) (string, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse message: %w", err)
	}

	text := env.Text
	if strings.TrimSpace(text) == "" && env.HTML != "" {
		text, err = html2text.FromString(env.HTML, html2text.Options{PrettyTables: false})
		if err != nil {
			return "", fmt.Errorf("failed to convert html body: %w", err)
		}
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("no displayable body found")
	}
	return wrapText(text, widthCols), nil
}

func (r *MIMERenderer) PrepareHTML(raw []byte, policy store.RemotePolicy) (string, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse message: %w", err)
	}
	if env.HTML == "" {
		return "", ErrNoHTML
	}

	html := stripScripts(env.HTML)
	html = inlineCIDImages(html, env)
	if policy == store.RemoteBlock {
		html = blockRemoteAttrs(html)
		html = blockRemoteCSSURLs(html)
	}
	return html, nil
}

func (r *MIMERenderer) RasterizeTiles(raw []byte, cfg TileConfig) ([][]byte, error) {
	if r.Rasterize == nil {
		return nil, errors.New("no rasterizer configured")
	}
	html, err := r.PrepareHTML(raw, cfg.Policy)
	if err != nil {
		return nil, err
	}
	return r.Rasterize(html, cfg)
}

// ExtractMeta pulls recipient headers, a short preview, and the attachment
// list from a raw body. Used when a full body is first fetched to enrich the
// header-only message row.
func ExtractMeta(raw []byte) (to, cc, preview string, atts []domain.Attachment, err error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return "", "", "", nil, fmt.Errorf("failed to parse message: %w", err)
	}

	to = env.GetHeader("To")
	cc = env.GetHeader("Cc")

	text := env.Text
	if strings.TrimSpace(text) == "" && env.HTML != "" {
		if converted, cerr := html2text.FromString(env.HTML); cerr == nil {
			text = converted
		}
	}
	preview = makePreview(text)

	for i, part := range env.Attachments {
		atts = append(atts, domain.Attachment{
			Index:    i,
			Filename: part.FileName,
			MIME:     part.ContentType,
			Size:     int64(len(part.Content)),
		})
	}
	return to, cc, preview, atts, nil
}

func makePreview(text string) string {
	fields := strings.Fields(text)
	preview := strings.Join(fields, " ")
	const max = 120
	if len(preview) > max {
		preview = preview[:max]
	}
	return preview
}

// wrapText greedily wraps each line to the display width, measuring runes by
// terminal cell width so CJK and emoji do not overflow the column.
func wrapText(text string, widthCols int) string {
	if widthCols <= 0 {
		return text
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if runewidth.StringWidth(line) <= widthCols {
			out = append(out, line)
			continue
		}
		var cur string
		for _, word := range strings.Fields(line) {
			if cur == "" {
				cur = word
				continue
			}
			if runewidth.StringWidth(cur)+1+runewidth.StringWidth(word) <= widthCols {
				cur += " " + word
			} else {
				out = append(out, cur)
				cur = word
			}
		}
		out = append(out, cur)
	}
	return strings.Join(out, "\n")
}

// stripScripts removes script blocks outright. Everything else is left for
// the terminal-side presenter, which never executes markup anyway.
func stripScripts(html string) string {
	lower := strings.ToLower(html)
	var b strings.Builder
	idx := 0
	for {
		start := strings.Index(lower[idx:], "<script")
		if start < 0 {
			b.WriteString(html[idx:])
			return b.String()
		}
		start += idx
		b.WriteString(html[idx:start])
		end := strings.Index(lower[start:], "</script>")
		if end < 0 {
			return b.String()
		}
		idx = start + end + len("</script>")
	}
}

// inlineCIDImages rewrites src="cid:..." references to data URLs built from
// the message's inline parts, so the prepared HTML is self-contained.
func inlineCIDImages(html string, env *enmime.Envelope) string {
	parts := append(append([]*enmime.Part{}, env.Inlines...), env.OtherParts...)
	for _, part := range parts {
		if part.ContentID == "" || len(part.Content) == 0 {
			continue
		}
		cid := strings.Trim(part.ContentID, "<>")
		dataURL := "data:" + part.ContentType + ";base64," + base64.StdEncoding.EncodeToString(part.Content)
		html = strings.ReplaceAll(html, `src="cid:`+cid+`"`, `src="`+dataURL+`"`)
		html = strings.ReplaceAll(html, `src='cid:`+cid+`'`, `src='`+dataURL+`'`)
	}
	return html
}

func blockRemoteAttrs(html string) string {
	for _, attr := range []string{"src", "background"} {
		for _, quote := range []string{`"`, `'`} {
			for _, scheme := range []string{"http://", "https://"} {
				prefix := attr + "=" + quote + scheme
				for {
					pos := strings.Index(html, prefix)
					if pos < 0 {
						break
					}
					urlStart := pos + len(prefix)
					end := strings.Index(html[urlStart:], quote)
					if end < 0 {
						break
					}
					html = html[:pos] + attr + "=" + quote + blockedURL + quote + html[urlStart+end+1:]
				}
			}
		}
	}
	return html
}

func blockRemoteCSSURLs(html string) string {
	var b strings.Builder
	idx := 0
	for {
		pos := strings.Index(html[idx:], "url(")
		if pos < 0 {
			b.WriteString(html[idx:])
			return b.String()
		}
		start := idx + pos
		b.WriteString(html[idx:start])
		end := strings.Index(html[start:], ")")
		if end < 0 {
			b.WriteString(html[start:])
			return b.String()
		}
		end += start
		inner := strings.Trim(strings.TrimSpace(html[start+4:end]), `"'`)
		if strings.HasPrefix(inner, "http://") || strings.HasPrefix(inner, "https://") {
			b.WriteString(`url("` + blockedURL + `")`)
		} else {
			b.WriteString(html[start : end+1])
		}
		idx = end + 1
	}
}
