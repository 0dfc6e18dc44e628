// Package messages holds the user facing strings in several languages.
package messages

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"subuk/gamemango/lifecycle"
	"subuk/gamemango/manager"
	"subuk/gamemango/util"
	"time"

	humanize "github.com/dustin/go-humanize"
	"gopkg.in/yaml.v2"
)

const DefaultLanguage = "en"

//go:embed en.yaml
var defaultCatalog []byte

type Catalog struct {
	Messages map[string]string `yaml:"messages"`
	Log      map[string]string `yaml:"log"`
}

func parse(content []byte) (*Catalog, error) {
	catalog := &Catalog{}
	if err := yaml.Unmarshal(content, catalog); err != nil {
		return nil, err
	}
	if catalog.Messages == nil {
		catalog.Messages = map[string]string{}
	}
	if catalog.Log == nil {
		catalog.Log = map[string]string{}
	}
	return catalog, nil
}

func Default() *Catalog {
	catalog, err := parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is broken: %s", err))
	}
	return catalog
}

// Load reads <dir>/<language>.yaml. Keys it lacks fall back to English.
func Load(dir, language string) (*Catalog, error) {
	catalog := Default()
	if language == "" || (language == DefaultLanguage && dir == "") {
		return catalog, nil
	}
	if dir == "" {
		return nil, fmt.Errorf("language '%s' requested but languages_dir not set", language)
	}
	content, err := os.ReadFile(filepath.Join(dir, language+".yaml"))
	if err != nil {
		return nil, util.NewError(err, "cannot read language file")
	}
	translated, err := parse(content)
	if err != nil {
		return nil, util.NewError(err, "invalid language file %s", language)
	}
	for key, value := range translated.Messages {
		catalog.Messages[key] = value
	}
	for key, value := range translated.Log {
		catalog.Log[key] = value
	}
	return catalog, nil
}

func replace(template string, replacements []string) string {
	if len(replacements) < 2 {
		return template
	}
	return strings.NewReplacer(replacements...).Replace(template)
}

// Get returns the message with placeholder pairs replaced, for example
// Get("unknown_server", "<sname>", name). Unknown keys return the key.
func (catalog *Catalog) Get(key string, replacements ...string) string {
	template, ok := catalog.Messages[key]
	if !ok {
		return key
	}
	return replace(template, replacements)
}

func (catalog *Catalog) LogMessage(key string, replacements ...string) string {
	template, ok := catalog.Log[key]
	if !ok {
		return key
	}
	return replace(template, replacements)
}

// PlayersLine renders "Players: online/max", without max when unknown.
func (catalog *Catalog) PlayersLine(info *manager.ServerInfo) string {
	line := catalog.Get("players") + " " + strconv.Itoa(info.Online)
	if info.Max > 0 {
		line += "/" + strconv.Itoa(info.Max)
	}
	return line
}

func Elapsed(elapsed time.Duration) string {
	now := time.Now()
	return strings.TrimSpace(humanize.RelTime(now.Add(-elapsed), now, "", ""))
}

func (catalog *Catalog) Render(notice lifecycle.Notice) string {
	sname := "<sname>"
	switch notice.Kind {
	case lifecycle.NoticeServerOpened:
		return catalog.Get(notice.Kind.String(), sname, notice.Server, "<elapsed>", Elapsed(notice.Elapsed))
	case lifecycle.NoticePleaseWaitInstanceState, lifecycle.NoticeInstanceNotRunning:
		return catalog.Get(notice.Kind.String(), sname, notice.Server, "<state>", notice.State.String())
	case lifecycle.NoticeServerNotEmpty:
		return catalog.Get(notice.Kind.String(), sname, notice.Server) + " " + strconv.Itoa(notice.Online)
	case lifecycle.NoticeStats:
		if notice.Info == nil {
			return ""
		}
		return catalog.PlayersLine(notice.Info)
	default:
		return catalog.Get(notice.Kind.String(), sname, notice.Server)
	}
}
