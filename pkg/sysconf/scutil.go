package sysconf

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"
)

const defaultScutilTimeout = 2 * time.Second

// ScutilSource reads the macOS dynamic store proxy dictionary through
// `scutil --proxy`.
type ScutilSource struct {
	// Path of the scutil binary; "scutil" when empty.
	Path    string
	Timeout time.Duration
}

func (s ScutilSource) Copy(ctx context.Context) (Snapshot, error) {
	bin := s.Path
	if bin == "" {
		bin = "scutil"
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultScutilTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, bin, "--proxy").Output()
	if err != nil {
		return nil, fmt.Errorf("running %s --proxy: %w", bin, err)
	}
	snap, err := ParseScutil(string(out))
	if err != nil {
		return nil, err
	}
	slog.Debug("Read proxy configuration from scutil", "keys", len(snap))
	return snap, nil
}

// ParseScutil parses the dictionary dump printed by `scutil --proxy`.
// Arrays become []any ordered by their numeric index; scalars stay strings.
func ParseScutil(out string) (Snapshot, error) {
	type frame struct {
		dict    map[string]any
		isArray bool
		key     string
	}

	var (
		root  map[string]any
		stack []*frame
	)

	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if line == "}" {
			if len(stack) == 0 {
				return nil, fmt.Errorf("unbalanced '}' in scutil output")
			}
			done := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				root = done.dict
				continue
			}
			parent := stack[len(stack)-1]
			if done.isArray {
				parent.dict[done.key] = arrayValues(done.dict)
			} else {
				parent.dict[done.key] = done.dict
			}
			continue
		}

		if strings.HasSuffix(line, "{") {
			key := ""
			head := strings.TrimSpace(strings.TrimSuffix(line, "{"))
			if k, v, ok := strings.Cut(head, " : "); ok {
				key = strings.TrimSpace(k)
				head = strings.TrimSpace(v)
			}
			if len(stack) > 0 && key == "" {
				return nil, fmt.Errorf("nested container without key: %q", line)
			}
			stack = append(stack, &frame{
				dict:    make(map[string]any),
				isArray: head == "<array>",
				key:     key,
			})
			continue
		}

		if len(stack) == 0 {
			continue
		}
		k, v, ok := strings.Cut(line, " : ")
		if !ok {
			continue
		}
		stack[len(stack)-1].dict[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading scutil output: %w", err)
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("unterminated dictionary in scutil output")
	}
	if root == nil {
		return nil, fmt.Errorf("no dictionary in scutil output")
	}
	return Snapshot(root), nil
}

func arrayValues(m map[string]any) []any {
	idx := make([]int, 0, len(m))
	byIdx := make(map[int]any, len(m))
	for k, v := range m {
		i, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		idx = append(idx, i)
		byIdx[i] = v
	}
	sort.Ints(idx)
	out := make([]any, 0, len(idx))
	for _, i := range idx {
		out = append(out, byIdx[i])
	}
	return out
}
