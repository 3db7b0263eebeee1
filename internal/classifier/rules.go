package classifier

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/VatsalSy/SyncGuard/internal/model"
)

// Rule names recorded in the classification context.
const (
	ruleAuthSignal = "auth_signal"
	ruleCode       = "code"
	ruleErrorValue = "error_value"
	ruleHTTPStatus = "http_status"
	ruleMessage    = "message"
	ruleDefault    = "default"
)

type keywordRule struct {
	failureType model.FailureType
	keywords    []string
}

// authKeywords are checked ahead of the code lookup so a credential failure
// reported through a generic network code is not retried as a network error.
var authKeywords = []keywordRule{
	{model.FailureAuthentication, []string{
		"unauthorized", "unauthenticated", "authentication failed", "token expired",
		"expired token", "invalid token", "invalid credentials", "login required",
	}},
	{model.FailurePermission, []string{
		"forbidden", "permission denied", "access denied", "not permitted", "insufficient privileges",
	}},
}

// messageKeywords are tried in order. Schema must precede the generic
// validation wording that often surrounds it.
var messageKeywords = []keywordRule{
	{model.FailureSchemaMismatch, []string{
		"schema", "unknown column", "no such column", "migration", "incompatible version",
	}},
	{model.FailureDataCorruption, []string{
		"checksum", "corrupt", "integrity", "malformed",
	}},
	{model.FailureConflict, []string{
		"conflict", "version mismatch", "concurrent modification", "stale",
	}},
	{model.FailureResourceExhaustion, []string{
		"disk full", "no space", "quota", "out of memory", "rate limit", "too many requests",
		"resource exhausted",
	}},
	{model.FailureTimeout, []string{
		"timeout", "timed out", "deadline exceeded",
	}},
	{model.FailureNetwork, []string{
		"network", "connection", "unreachable", "dns", "socket", "offline", "fetch failed",
	}},
}

func matchKeywords(rules []keywordRule, text string) (model.FailureType, bool) {
	if text == "" {
		return "", false
	}
	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.failureType, true
			}
		}
	}
	return "", false
}

// failureText is the lower-cased message plus the original error text.
func failureText(se *model.SyncError) string {
	text := se.Message
	if se.Original != nil {
		text += " " + se.Original.Error()
	}
	return strings.ToLower(text)
}

// httpStatus reads the status from the typed field or from details.
func httpStatus(se *model.SyncError) int {
	if se.HTTPStatus > 0 {
		return se.HTTPStatus
	}
	for _, key := range []string{"status", "statusCode", "status_code", "httpStatus"} {
		raw, ok := se.Details[key]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
		case fmt.Stringer:
			if n, err := strconv.Atoi(v.String()); err == nil {
				return n
			}
		}
	}
	return 0
}

func authFromStatus(status int) (model.FailureType, bool) {
	switch status {
	case 401:
		return model.FailureAuthentication, true
	case 403:
		return model.FailurePermission, true
	}
	return "", false
}

func typeFromStatus(status int) (model.FailureType, bool) {
	switch {
	case status == 408 || status == 504:
		return model.FailureTimeout, true
	case status == 409 || status == 412:
		return model.FailureConflict, true
	case status == 429 || status == 507:
		return model.FailureResourceExhaustion, true
	case status >= 500 && status <= 599:
		return model.FailureNetwork, true
	}
	return "", false
}

// typeFromError inspects the original error value.
func typeFromError(err error) (model.FailureType, bool) {
	if err == nil {
		return "", false
	}

	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, os.ErrDeadlineExceeded) {
		return model.FailureTimeout, true
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return model.FailureTimeout, true
	}

	switch {
	case stderrors.Is(err, syscall.ENOSPC):
		return model.FailureResourceExhaustion, true
	case stderrors.Is(err, os.ErrPermission):
		return model.FailurePermission, true
	case stderrors.Is(err, syscall.ECONNREFUSED), stderrors.Is(err, syscall.ECONNRESET):
		return model.FailureNetwork, true
	}

	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return model.FailureNetwork, true
	}

	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		return model.FailureNetwork, true
	}

	return "", false
}

// detectFailureType applies the ordered rules and reports which one matched.
func (c *Classifier) detectFailureType(se *model.SyncError) (model.FailureType, string) {
	status := httpStatus(se)
	text := failureText(se)

	if ft, ok := authFromStatus(status); ok {
		return ft, ruleAuthSignal
	}
	if ft, ok := matchKeywords(authKeywords, text); ok {
		return ft, ruleAuthSignal
	}

	if info, ok := c.registry.LookupSyncCode(se.Code); ok {
		return info.FailureType, ruleCode
	}

	if ft, ok := typeFromError(se.Original); ok {
		return ft, ruleErrorValue
	}
	if ft, ok := typeFromStatus(status); ok {
		return ft, ruleHTTPStatus
	}

	if ft, ok := matchKeywords(messageKeywords, text); ok {
		return ft, ruleMessage
	}

	return model.FailureUnknown, ruleDefault
}
