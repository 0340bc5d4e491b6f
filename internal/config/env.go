package config

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// reader читает числовые настройки и запоминает первую ошибку
type reader struct {
	v   *viper.Viper
	err error
}

// int строки разбираются только в десятичной системе: "010" это 10
func (r *reader) int(key string) int {
	var (
		n   int
		err error
	)
	switch raw := r.v.Get(key).(type) {
	case string:
		n, err = strconv.Atoi(strings.TrimSpace(raw))
	default:
		n, err = cast.ToIntE(raw)
	}
	if err != nil {
		r.fail(invalid(key, "not an integer: %v", r.v.Get(key)))
		return 0
	}
	return n
}

func (r *reader) seconds(key string) time.Duration {
	return time.Duration(r.int(key)) * time.Second
}

func (r *reader) minutes(key string) time.Duration {
	return time.Duration(r.int(key)) * time.Minute
}

func (r *reader) bool(key string, fallback bool) bool {
	if !r.v.IsSet(key) {
		return fallback
	}
	b, err := parseBool(r.v.Get(key))
	if err != nil {
		r.fail(invalid(key, "%v", err))
		return fallback
	}
	return b
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// parseBool понимает 1/0, true/false, yes/no, on/off
func parseBool(raw interface{}) (bool, error) {
	s, ok := raw.(string)
	if !ok {
		return cast.ToBoolE(raw)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

// splitList разбивает список через запятую, пропуская пустые элементы
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if item := strings.TrimSpace(part); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0:0]
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

func envName(key string) string {
	return strings.ToUpper(key)
}

// parseDownloadFile разбирает запись вида "file", "label|url" или "label|url|bytes"
func parseDownloadFile(entry, baseURL string) (DownloadFile, error) {
	parts := strings.SplitN(entry, "|", 3)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	var file DownloadFile
	raw := parts[0]
	if len(parts) > 1 {
		file.Name = parts[0]
		raw = parts[1]
	}
	if len(parts) == 3 && parts[2] != "" {
		n, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || n <= 0 {
			return DownloadFile{}, fmt.Errorf("entry %q: invalid expected size %q", entry, parts[2])
		}
		file.ExpectedBytes = n
	}
	if raw == "" {
		return DownloadFile{}, fmt.Errorf("entry %q: empty source", entry)
	}

	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		file.URL = raw
	} else {
		if baseURL == "" {
			return DownloadFile{}, fmt.Errorf("entry %q: relative name requires DOWNLOAD_BASE_URL", entry)
		}
		file.URL = strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(raw, "/")
	}
	if err := validateURL(file.URL); err != nil {
		return DownloadFile{}, fmt.Errorf("entry %q: %w", entry, err)
	}

	if file.Name == "" {
		file.Name = raw
		if u, err := url.Parse(file.URL); err == nil && strings.HasPrefix(raw, "http") {
			if base := path.Base(u.Path); base != "/" && base != "." {
				file.Name = base
			}
		}
	}
	return file, nil
}
