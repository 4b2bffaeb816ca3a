package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// parseYAML parses the specific two-level mapping used by config.yaml
func parseYAML(r io.Reader, cfg *Config) error {
	type section int
	const (
		none section = iota
		db
		rm
		sv
		jw
		ps
		mp
		pay
	)

	scanner := bufio.NewScanner(r)
	var cur section

	lineNo := 0
	seenTop := map[section]bool{}

	enter := func(s section, name string) error {
		if seenTop[s] {
			return fmt.Errorf("line %d: duplicate '%s' section", lineNo, name)
		}
		seenTop[s] = true
		cur = s
		return nil
	}

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()

		// strip comments
		if i := strings.IndexByte(raw, '#'); i >= 0 {
			raw = raw[:i]
		}

		line := strings.TrimRight(raw, " \t\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}

		// top-level section? (no leading spaces)
		if len(line) > 0 && (line[0] != ' ' && line[0] != '\t') {
			var err error
			switch strings.TrimSpace(line) {
			case "database:":
				err = enter(db, "database")
			case "rabbitmq:":
				err = enter(rm, "rabbitmq")
			case "server:":
				err = enter(sv, "server")
			case "jwt:":
				err = enter(jw, "jwt")
			case "push:":
				err = enter(ps, "push")
			case "maps:":
				err = enter(mp, "maps")
			case "payments:":
				err = enter(pay, "payments")
			default:
				return fmt.Errorf("line %d: unknown top-level key %q", lineNo, strings.TrimSuffix(strings.TrimSpace(line), ":"))
			}
			if err != nil {
				return err
			}
			continue
		}

		// expect indented "key: value"
		if cur == none {
			return fmt.Errorf("line %d: key without a section", lineNo)
		}
		trim := strings.TrimSpace(line)
		colon := strings.IndexByte(trim, ':')
		if colon <= 0 {
			return fmt.Errorf("line %d: expected 'key: value'", lineNo)
		}
		key := strings.TrimSpace(trim[:colon])
		val := resolveScalar(trim[colon+1:])

		intVal := func(section string) (int, error) {
			n, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("line %d: %s.%s must be int: %v", lineNo, section, key, err)
			}
			return n, nil
		}

		var err error
		switch cur {
		case db:
			switch key {
			case "host":
				cfg.Database.Host = val
			case "port":
				cfg.Database.Port, err = intVal("database")
			case "user":
				cfg.Database.User = val
			case "password":
				cfg.Database.Password = val
			case "database":
				cfg.Database.Name = val
			default:
				return fmt.Errorf("line %d: unknown key in database: %q", lineNo, key)
			}
		case rm:
			switch key {
			case "host":
				cfg.RabbitMQ.Host = val
			case "port":
				cfg.RabbitMQ.Port, err = intVal("rabbitmq")
			case "user":
				cfg.RabbitMQ.User = val
			case "password":
				cfg.RabbitMQ.Password = val
			default:
				return fmt.Errorf("line %d: unknown key in rabbitmq: %q", lineNo, key)
			}
		case sv:
			switch key {
			case "port":
				cfg.Server.Port, err = intVal("server")
			case "max_concurrent":
				cfg.Server.MaxConcurrent, err = intVal("server")
			default:
				return fmt.Errorf("line %d: unknown key in server: %q", lineNo, key)
			}
		case jw:
			switch key {
			case "access_secret":
				cfg.JWT.AccessSecret = val
			case "refresh_secret":
				cfg.JWT.RefreshSecret = val
			case "access_ttl_minutes":
				cfg.JWT.AccessTTLMinutes, err = intVal("jwt")
			case "refresh_ttl_days":
				cfg.JWT.RefreshTTLDays, err = intVal("jwt")
			default:
				return fmt.Errorf("line %d: unknown key in jwt: %q", lineNo, key)
			}
		case ps:
			switch key {
			case "url":
				cfg.Push.URL = val
			case "api_key":
				cfg.Push.APIKey = val
			default:
				return fmt.Errorf("line %d: unknown key in push: %q", lineNo, key)
			}
		case mp:
			switch key {
			case "url":
				cfg.Maps.URL = val
			case "api_key":
				cfg.Maps.APIKey = val
			default:
				return fmt.Errorf("line %d: unknown key in maps: %q", lineNo, key)
			}
		case pay:
			switch key {
			case "webhook_secret":
				cfg.Payments.WebhookSecret = val
			default:
				return fmt.Errorf("line %d: unknown key in payments: %q", lineNo, key)
			}
		}
		if err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	return nil
}

// resolveScalar trims whitespace and removes surrounding quotes from YAML-like scalars.
// For example:
//
//	"localhost"   -> localhost
//	'password123' -> password123
//	localhost     -> localhost
//
// This ensures values like jwt.access_secret are not stored with extra quotes.
func resolveScalar(s string) string {
	s = strings.TrimSpace(s)

	// if value is quoted with "..." or '...', remove quotes safely
	n := len(s)
	if n >= 2 {
		if (s[0] == '"' && s[n-1] == '"') || (s[0] == '\'' && s[n-1] == '\'') {
			if unq, err := strconv.Unquote(s); err == nil {
				return unq
			}
			// fallback if strconv.Unquote fails (e.g., mismatched quotes)
			return s[1 : n-1]
		}
	}

	return s
}
