package pac

import (
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/robertkrimen/otto"
)

func (e *Engine) registerPacHelpers(vm *otto.Otto) error {
	helpers := map[string]func(otto.FunctionCall) otto.Value{
		"isPlainHostName":     pacIsPlainHostName,
		"dnsDomainIs":         pacDnsDomainIs,
		"localHostOrDomainIs": pacLocalHostOrDomainIs,
		"isResolvable":        e.pacIsResolvable,
		"dnsResolve":          e.pacDnsResolve,
		"myIpAddress":         e.pacMyIpAddress,
		"dnsDomainLevels":     pacDnsDomainLevels,
		"isInNet":             e.pacIsInNet,
		"shExpMatch":          pacShExpMatch,
		"weekdayRange":        e.pacWeekdayRange,
		"dateRange":           e.pacDateRange,
		"timeRange":           e.pacTimeRange,
		"alert":               pacAlert,
	}
	for name, fn := range helpers {
		if err := vm.Set(name, fn); err != nil {
			return fmt.Errorf("failed to set PAC helper '%s': %w", name, err)
		}
	}
	return nil
}

func boolValue(call otto.FunctionCall, b bool) otto.Value {
	v, _ := call.Otto.ToValue(b)
	return v
}

func pacAlert(call otto.FunctionCall) otto.Value {
	message, _ := call.Argument(0).ToString()
	slog.Warn("[PAC Alert]", "message", message)
	return otto.UndefinedValue()
}

func pacIsPlainHostName(call otto.FunctionCall) otto.Value {
	host, _ := call.Argument(0).ToString()
	return boolValue(call, !strings.Contains(host, ".") && net.ParseIP(host) == nil)
}

func pacDnsDomainIs(call otto.FunctionCall) otto.Value {
	host, _ := call.Argument(0).ToString()
	domain, _ := call.Argument(1).ToString()

	host = strings.ToLower(strings.TrimSuffix(host, "."))
	domain = strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(domain, "."), "."))
	if host == "" || domain == "" {
		return boolValue(call, false)
	}
	return boolValue(call, host == domain || strings.HasSuffix(host, "."+domain))
}

// localHostOrDomainIs is true for an exact match, or when host is unqualified
// and matches the first label of hostdom.
func pacLocalHostOrDomainIs(call otto.FunctionCall) otto.Value {
	host, _ := call.Argument(0).ToString()
	hostdom, _ := call.Argument(1).ToString()
	host = strings.ToLower(host)
	hostdom = strings.ToLower(hostdom)

	if host == hostdom {
		return boolValue(call, true)
	}
	if strings.Contains(host, ".") {
		return boolValue(call, false)
	}
	first, _, _ := strings.Cut(hostdom, ".")
	return boolValue(call, host != "" && host == first)
}

func pacDnsDomainLevels(call otto.FunctionCall) otto.Value {
	host, _ := call.Argument(0).ToString()
	host = strings.TrimSuffix(host, ".")
	levels := 0
	if host != "" && net.ParseIP(host) == nil {
		levels = strings.Count(host, ".")
	}
	v, _ := call.Otto.ToValue(levels)
	return v
}

func pacShExpMatch(call otto.FunctionCall) otto.Value {
	str, _ := call.Argument(0).ToString()
	pattern, _ := call.Argument(1).ToString()

	// filepath.Match treats '/' as a separator; PAC patterns do not.
	const sep = "\x00"
	matched, err := filepath.Match(strings.ReplaceAll(pattern, "/", sep), strings.ReplaceAll(str, "/", sep))
	if err != nil {
		slog.Warn("Error in PAC shExpMatch evaluation", "pattern", pattern, "string", str, "error", err)
		matched = false
	}
	return boolValue(call, matched)
}

func (e *Engine) pacDnsResolve(call otto.FunctionCall) otto.Value {
	host, err := call.Argument(0).ToString()
	if err != nil {
		return otto.NullValue()
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return otto.NullValue()
	}
	if net.ParseIP(host) != nil {
		v, _ := call.Otto.ToValue(host)
		return v
	}
	ip, ok := e.lookupHost(host)
	if !ok {
		return otto.NullValue()
	}
	v, _ := call.Otto.ToValue(ip)
	return v
}

func (e *Engine) pacIsResolvable(call otto.FunctionCall) otto.Value {
	resolved := e.pacDnsResolve(call)
	return boolValue(call, !resolved.IsNull() && !resolved.IsUndefined())
}

func (e *Engine) pacMyIpAddress(call otto.FunctionCall) otto.Value {
	v, _ := call.Otto.ToValue(e.myIP())
	return v
}

func (e *Engine) pacIsInNet(call otto.FunctionCall) otto.Value {
	hostStr, errH := call.Argument(0).ToString()
	patternStr, errP := call.Argument(1).ToString()
	maskStr, errM := call.Argument(2).ToString()
	if errH != nil || errP != nil || errM != nil {
		slog.Warn("PAC isInNet: failed to read arguments")
		return otto.FalseValue()
	}

	hostStr = strings.TrimSpace(hostStr)
	hostIP := hostStr
	if net.ParseIP(hostStr) == nil {
		resolved, ok := e.lookupHost(hostStr)
		if !ok {
			return otto.FalseValue()
		}
		hostIP = resolved
	}
	return boolValue(call, ipIsInNet(hostIP, patternStr, maskStr))
}

func ipIsInNet(ipStr, patternStr, maskStr string) bool {
	ip := net.ParseIP(ipStr)
	patternIP := net.ParseIP(patternStr)
	maskIP := net.ParseIP(maskStr)
	if ip == nil || patternIP == nil || maskIP == nil {
		slog.Warn("PAC isInNet: failed to parse one or more IP/mask strings", "ip", ipStr, "pattern", patternStr, "mask", maskStr)
		return false
	}

	if ip4, p4, m4 := ip.To4(), patternIP.To4(), maskIP.To4(); ip4 != nil && p4 != nil && m4 != nil {
		mask := net.IPMask(m4)
		return ip4.Mask(mask).Equal(p4.Mask(mask))
	}
	if ip.To4() == nil && patternIP.To4() == nil {
		mask := net.IPMask(maskIP.To16())
		return ip.To16().Mask(mask).Equal(patternIP.To16().Mask(mask))
	}
	slog.Warn("PAC isInNet: IP address versions mismatch", "ip", ipStr, "pattern", patternStr, "mask", maskStr)
	return false
}

// --- Date and time helpers ---

// timeArgs returns the string form of the call arguments with a trailing
// "GMT" removed, and whether it was present.
func timeArgs(call otto.FunctionCall) ([]string, bool) {
	args := make([]string, 0, len(call.ArgumentList))
	for _, a := range call.ArgumentList {
		s, _ := a.ToString()
		args = append(args, strings.TrimSpace(s))
	}
	if n := len(args); n > 0 && strings.EqualFold(args[n-1], "GMT") {
		return args[:n-1], true
	}
	return args, false
}

func (e *Engine) clock(gmt bool) time.Time {
	now := e.now()
	if gmt {
		return now.UTC()
	}
	return now
}

// inRange reports lo <= v <= hi, wrapping around when lo > hi.
func inRange(v, lo, hi int) bool {
	if lo <= hi {
		return v >= lo && v <= hi
	}
	return v >= lo || v <= hi
}

func parseWeekday(s string) (time.Weekday, bool) {
	days := []string{"SUN", "MON", "TUE", "WED", "THU", "FRI", "SAT"}
	for i, d := range days {
		if strings.EqualFold(s, d) {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

func parseMonth(s string) (time.Month, bool) {
	months := []string{"JAN", "FEB", "MAR", "APR", "MAY", "JUN", "JUL", "AUG", "SEP", "OCT", "NOV", "DEC"}
	for i, m := range months {
		if strings.EqualFold(s, m) {
			return time.Month(i + 1), true
		}
	}
	return 0, false
}

func (e *Engine) pacWeekdayRange(call otto.FunctionCall) otto.Value {
	args, gmt := timeArgs(call)
	if len(args) < 1 || len(args) > 2 {
		slog.Warn("PAC weekdayRange: incorrect number of arguments")
		return boolValue(call, false)
	}
	wd1, ok1 := parseWeekday(args[0])
	wd2, ok2 := wd1, true
	if len(args) == 2 {
		wd2, ok2 = parseWeekday(args[1])
	}
	if !ok1 || !ok2 {
		slog.Warn("PAC weekdayRange: invalid weekday string", "args", args)
		return boolValue(call, false)
	}
	return boolValue(call, inRange(int(e.clock(gmt).Weekday()), int(wd1), int(wd2)))
}

// dateRange supports the single-value and same-kind range forms:
// day, month or year, e.g. dateRange(1, 15) or dateRange("JAN", "MAR").
func (e *Engine) pacDateRange(call otto.FunctionCall) otto.Value {
	args, gmt := timeArgs(call)
	if len(args) < 1 || len(args) > 2 {
		slog.Warn("PAC dateRange: only single values and same-kind ranges are supported", "args", args)
		return boolValue(call, false)
	}
	now := e.clock(gmt)

	kind := func(s string) (string, int, bool) {
		if m, ok := parseMonth(s); ok {
			return "month", int(m), true
		}
		var n int
		if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
			return "", 0, false
		}
		if n >= 1 && n <= 31 {
			return "day", n, true
		}
		if n > 1000 {
			return "year", n, true
		}
		return "", 0, false
	}

	k1, v1, ok1 := kind(args[0])
	k2, v2, ok2 := k1, v1, ok1
	if len(args) == 2 {
		k2, v2, ok2 = kind(args[1])
	}
	if !ok1 || !ok2 || k1 != k2 {
		slog.Warn("PAC dateRange: invalid arguments", "args", args)
		return boolValue(call, false)
	}

	var cur int
	switch k1 {
	case "day":
		cur = now.Day()
	case "month":
		cur = int(now.Month())
	case "year":
		cur = now.Year()
		return boolValue(call, cur >= v1 && cur <= v2)
	}
	return boolValue(call, inRange(cur, v1, v2))
}

// timeRange supports hour, hour-range, hour:min range and hour:min:sec range
// forms. The end of an hour range is exclusive.
func (e *Engine) pacTimeRange(call otto.FunctionCall) otto.Value {
	args, gmt := timeArgs(call)
	nums := make([]int, 0, len(args))
	for _, a := range args {
		var n int
		if _, err := fmt.Sscanf(a, "%d", &n); err != nil {
			slog.Warn("PAC timeRange: non-numeric argument", "arg", a)
			return boolValue(call, false)
		}
		nums = append(nums, n)
	}
	now := e.clock(gmt)
	secOfDay := now.Hour()*3600 + now.Minute()*60 + now.Second()

	var result bool
	switch len(nums) {
	case 1:
		result = now.Hour() == nums[0]
	case 2:
		if nums[0] == nums[1] {
			result = now.Hour() == nums[0]
		} else {
			result = inRange(now.Hour(), nums[0], (nums[1]+23)%24)
		}
	case 4:
		result = inRange(secOfDay, nums[0]*3600+nums[1]*60, nums[2]*3600+nums[3]*60+59)
	case 6:
		result = inRange(secOfDay, nums[0]*3600+nums[1]*60+nums[2], nums[3]*3600+nums[4]*60+nums[5])
	default:
		slog.Warn("PAC timeRange: unsupported argument count", "count", len(nums))
	}
	return boolValue(call, result)
}
