package applications

import (
	"errors"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"morcore/internal/domain/report"
	"morcore/internal/errs"
)

type registryEntry struct {
	Name          string   `toml:"name"`
	BaseURL       string   `toml:"base_url"`
	ValidBaseURLs []string `toml:"valid_base_urls"`
	Username      string   `toml:"username"`
	Password      string   `toml:"password"`
	PasswordEnv   string   `toml:"password_env"`
	TaskTypes     []string `toml:"task_types"`
}

type registryFile struct {
	Applications []registryEntry `toml:"application"`
}

// LoadRegistry reads an applications.toml file:
//
//	[[application]]
//	name = "fixer"
//	base_url = "https://fixer.example.org"
//	username = "mor"
//	password_env = "FIXER_PASSWORD"
//	task_types = ["https://fixer.example.org/api/v1/taaktype/1/"]
func LoadRegistry(path string) ([]report.Application, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("registry file is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrapf(err, "read registry %q", path)
	}
	return ParseRegistry(raw)
}

func ParseRegistry(raw []byte) ([]report.Application, error) {
	var file registryFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return nil, errs.Wrap(err, "parse registry")
	}

	seen := make(map[string]struct{}, len(file.Applications))
	apps := make([]report.Application, 0, len(file.Applications))
	for i, entry := range file.Applications {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return nil, errs.Wrapf(errors.New("name is required"), "application[%d]", i)
		}
		if _, dup := seen[name]; dup {
			return nil, errors.New("application " + name + " is listed twice")
		}
		seen[name] = struct{}{}

		if report.Origin(entry.BaseURL) == "" {
			return nil, errors.New("application " + name + ": base_url must be an absolute url")
		}
		for _, base := range entry.ValidBaseURLs {
			if report.Origin(base) == "" {
				return nil, errors.New("application " + name + ": invalid valid_base_urls entry " + base)
			}
		}

		password := entry.Password
		if env := strings.TrimSpace(entry.PasswordEnv); env != "" {
			password = os.Getenv(env)
		}
		apps = append(apps, report.Application{
			Name:          name,
			BaseURL:       strings.TrimRight(strings.TrimSpace(entry.BaseURL), "/"),
			ValidBaseURLs: entry.ValidBaseURLs,
			Username:      strings.TrimSpace(entry.Username),
			Password:      password,
			TaskTypes:     entry.TaskTypes,
		})
	}
	return apps, nil
}
