package connection

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"

	adminv1 "github.com/yndnr/converge/api/admin/v1"
	"github.com/yndnr/converge/internal/infra/buildinfo"
)

// DefaultTimeout bounds every admin request.
const DefaultTimeout = 30 * time.Second

// BaseURL turns "host:port" into "http://host:port". URLs that already
// carry a scheme are returned unchanged.
func BaseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/")
	}
	return "http://" + strings.TrimRight(addr, "/")
}

// NewClient creates an admin API client for addr.
func NewClient(addr string, timeout time.Duration) adminv1.AdminServiceClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: userAgent{next: http.DefaultTransport},
	}
	return adminv1.NewAdminServiceClient(httpClient, BaseURL(addr))
}

type userAgent struct {
	next http.RoundTripper
}

func (u userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", "convergectl/"+buildinfo.Version)
	return u.next.RoundTrip(req)
}

// Describe turns an admin API error into a one-line message for the
// terminal.
func Describe(err error) error {
	var ce *connect.Error
	if !errors.As(err, &ce) {
		return err
	}
	switch ce.Code() {
	case connect.CodeUnavailable:
		return fmt.Errorf("control service unavailable: %s", ce.Message())
	case connect.CodeInvalidArgument:
		return fmt.Errorf("rejected: %s", ce.Message())
	case connect.CodeResourceExhausted:
		return fmt.Errorf("rate limited, retry later: %s", ce.Message())
	default:
		return fmt.Errorf("%s: %s", ce.Code(), ce.Message())
	}
}
