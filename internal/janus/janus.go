// Package janus renders the Janus streaming plugin configuration
// (janus.plugin.streaming.jcfg) for the feed population.
package janus

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/tphakala/rtp-recorder/internal/conf"
	"github.com/tphakala/rtp-recorder/internal/errors"
	"github.com/tphakala/rtp-recorder/internal/feed"
)

// Stream count bounds accepted by Janus.
const (
	MinStreams = 1
	MaxStreams = 1000
)

const (
	multistreamID     = 1234
	perStreamIDOffset = 1000
)

// Options controls the generated file.
type Options struct {
	AdminKey     string
	Secret       string // multistream mountpoint secret
	Layout       string // conf.JanusLayoutMultistream or conf.JanusLayoutPerStream
	RecordingDir string
	Record       bool
}

// OptionsFromSettings maps the janus settings group.
func OptionsFromSettings(s *conf.JanusSettings) Options {
	return Options{
		AdminKey:     s.AdminKey,
		Secret:       s.Secret,
		Layout:       s.Layout,
		RecordingDir: s.RecordingDir,
		Record:       s.Record,
	}
}

type media struct {
	MID     string
	Label   string
	Port    int
	PT      int
	Codec   string
	Record  bool
	RecFile string
}

type mountpoint struct {
	Name        string
	ID          int
	Description string
	Metadata    string
	Secret      string
	Media       []media
}

type document struct {
	AdminKey    string
	Mountpoints []mountpoint
}

var jcfg = template.Must(template.New("jcfg").Funcs(template.FuncMap{
	"last": func(i, n int) bool { return i == n-1 },
}).Parse(`general: {
    admin_key = "{{.AdminKey}}"
    events = true
    string_ids = false
}
{{range .Mountpoints}}
{{.Name}}: {
    type = "rtp"
    id = {{.ID}}
    description = "{{.Description}}"
{{- if .Metadata}}
    metadata = "{{.Metadata}}"
{{- end}}
{{- if .Secret}}
    secret = "{{.Secret}}"
{{- end}}
    media = (
{{- $n := len .Media}}
{{- range $i, $m := .Media}}
        {
            type = "video"
            mid = "{{$m.MID}}"
            label = "{{$m.Label}}"
            port = {{$m.Port}}
            pt = {{$m.PT}}
            codec = "{{$m.Codec}}"
            record = {{$m.Record}}
            recfile = "{{$m.RecFile}}"
        }{{if not (last $i $n)}},{{end}}
{{- end}}
    )
}
{{end}}`))

// Generate writes the configuration for defs to w.
func Generate(w io.Writer, defs []feed.Definition, opts Options) error {
	if len(defs) < MinStreams || len(defs) > MaxStreams {
		return errors.New(fmt.Errorf("number of streams must be between %d and %d, got %d", MinStreams, MaxStreams, len(defs))).
			Component("janus").
			Category(errors.CategoryValidation).
			Build()
	}

	doc := document{AdminKey: quote(opts.AdminKey)}
	switch opts.Layout {
	case conf.JanusLayoutMultistream, "":
		doc.Mountpoints = []mountpoint{multistream(defs, opts)}
	case conf.JanusLayoutPerStream:
		doc.Mountpoints = perStream(defs, opts)
	default:
		return errors.Newf("unknown janus layout %q", opts.Layout).
			Component("janus").
			Category(errors.CategoryValidation).
			Build()
	}

	if err := jcfg.Execute(w, doc); err != nil {
		return errors.New(err).
			Component("janus").
			Category(errors.CategoryFileIO).
			Build()
	}
	return nil
}

// WriteFile renders the configuration and replaces path atomically.
func WriteFile(path string, defs []feed.Definition, opts Options) error {
	var buf bytes.Buffer
	if err := Generate(&buf, defs, opts); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".jcfg-*")
	if err != nil {
		return fileError(err, path)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fileError(err, path)
	}
	if err := tmp.Close(); err != nil {
		return fileError(err, path)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fileError(err, path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fileError(err, path)
	}
	return nil
}

func multistream(defs []feed.Definition, opts Options) mountpoint {
	n := len(defs)
	mp := mountpoint{
		Name:        "multistream-test",
		ID:          multistreamID,
		Description: fmt.Sprintf("Multistream test (%d video)", n),
		Metadata:    fmt.Sprintf("This is an example of a multistream mountpoint: you'll get %d video feeds", n),
		Secret:      quote(opts.Secret),
		Media:       make([]media, 0, n),
	}
	for i := range defs {
		mp.Media = append(mp.Media, mediaFor(i, &defs[i], opts))
	}
	return mp
}

func perStream(defs []feed.Definition, opts Options) []mountpoint {
	mps := make([]mountpoint, 0, len(defs))
	for i := range defs {
		def := &defs[i]
		mps = append(mps, mountpoint{
			Name:        fmt.Sprintf("multistream-%03d", i+1),
			ID:          perStreamIDOffset + i + 1,
			Description: "Camera " + quote(def.Label),
			Media:       []media{mediaFor(i, def, opts)},
		})
	}
	return mps
}

// mediaFor uses v<index> as the Janus mid; Janus mids are per mountpoint
// and unrelated to feed ids.
func mediaFor(i int, def *feed.Definition, opts Options) media {
	return media{
		MID:     fmt.Sprintf("v%03d", i+1),
		Label:   quote(def.Label),
		Port:    def.Port,
		PT:      def.PayloadType,
		Codec:   quote(def.Codec),
		Record:  opts.Record,
		RecFile: quote(recFile(opts.RecordingDir, def.Label)),
	}
}

func recFile(dir, label string) string {
	name := "stream-" + label + "-%Y%m%d%H%M%S.mjr"
	if dir == "" {
		return name
	}
	// Janus runs on Linux; keep forward slashes regardless of host OS.
	return path.Join(filepath.ToSlash(dir), name)
}

// quote escapes a value for a double-quoted libconfig string.
func quote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func fileError(err error, path string) error {
	return errors.New(err).
		Component("janus").
		Category(errors.CategoryFileIO).
		Context("path", path).
		Build()
}
