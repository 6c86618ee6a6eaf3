package keychain

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const defaultSecurityTimeout = 5 * time.Second

// SecurityStore queries the macOS login keychain through the security(1)
// tool. The tool reports at most one item per query.
type SecurityStore struct {
	// Path of the security binary; "security" when empty.
	Path    string
	Timeout time.Duration
}

func (s SecurityStore) bin() string {
	if s.Path == "" {
		return "security"
	}
	return s.Path
}

func (s SecurityStore) run(ctx context.Context, args ...string) ([]byte, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultSecurityTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.bin(), args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		// security exits 44 (errSecItemNotFound) when nothing matches.
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 44 {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s %s: %w: %s", s.bin(), args[0], err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

func queryArgs(q Query) []string {
	args := []string{"find-internet-password", "-s", q.Server}
	if q.Protocol != "" {
		args = append(args, "-r", string(q.Protocol))
	}
	if q.Port != 0 {
		args = append(args, "-P", strconv.FormatUint(uint64(q.Port), 10))
	}
	return args
}

func (s SecurityStore) Find(ctx context.Context, q Query) ([]Item, error) {
	out, err := s.run(ctx, queryArgs(q)...)
	if err != nil {
		return nil, err
	}
	attrs := ParseSecurityAttributes(out)
	slog.Debug("Found keychain item", "server", q.Server, "port", q.Port, "attributes", len(attrs))
	return []Item{&securityItem{ctx: ctx, store: s, query: q, attrs: attrs}}, nil
}

// securityItem reads its secret lazily under the context of the Find call
// that produced it.
type securityItem struct {
	ctx   context.Context
	store SecurityStore
	query Query
	attrs map[string]string
}

func (i *securityItem) Account() (string, error) {
	acct, ok := i.attrs["acct"]
	if !ok {
		return "", fmt.Errorf("account: %w", ErrAttribute)
	}
	return acct, nil
}

func (i *securityItem) Secret() ([]byte, error) {
	acct, err := i.Account()
	if err != nil {
		return nil, err
	}
	args := append(queryArgs(i.query), "-a", acct, "-w")
	out, err := i.store.run(i.ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	return bytes.TrimSuffix(out, []byte("\n")), nil
}

// ParseSecurityAttributes extracts the quoted attribute values printed by
// `security find-internet-password`, keyed by their four character code.
// Attributes whose value is <NULL> are omitted.
func ParseSecurityAttributes(out []byte) map[string]string {
	attrs := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, `"`) {
			continue
		}
		end := strings.Index(line[1:], `"`)
		if end < 0 {
			continue
		}
		name := line[1 : end+1]
		_, value, ok := strings.Cut(line[end+2:], "=")
		if !ok || value == "<NULL>" {
			continue
		}
		// Non-printable values are shown as 0x<hex>  "<escaped>".
		if strings.HasPrefix(value, "0x") {
			if _, quoted, ok := strings.Cut(value, " "); ok {
				value = strings.TrimSpace(quoted)
			}
		}
		if unq, err := strconv.Unquote(value); err == nil {
			value = unq
		} else {
			value = strings.Trim(value, `"`)
		}
		attrs[name] = value
	}
	return attrs
}
