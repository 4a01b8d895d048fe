package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cshariq/Sapphire-sub003/pkg/smc"
	"github.com/cshariq/Sapphire-sub003/pkg/types"
)

func newTestRouter(t *testing.T, sim *smc.Simulator) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	svc := newTestService(t, sim, WithMetrics(metrics))
	return NewRouter(svc, metrics, reg)
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouterChargeLimit(t *testing.T) {
	r := newTestRouter(t, smc.NewDefaultSimulator())

	w := do(r, http.MethodPut, "/charge-limit", "5")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	var resp types.LimitResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Limit != 20 {
		t.Errorf("limit = %d, want 20", resp.Limit)
	}
}

func TestRouterFanTarget(t *testing.T) {
	r := newTestRouter(t, smc.NewDefaultSimulator())

	w := do(r, http.MethodPut, "/fans/0/target", `{"rpm": 99999}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	var resp types.RPMResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.RPM != 6500 {
		t.Errorf("rpm = %d, want 6500", resp.RPM)
	}
}

func TestRouterErrors(t *testing.T) {
	bare := smc.NewSimulator()
	bare.Set(smc.ChargeLimitKey, smc.TypeUI8, []byte{100})

	tests := []struct {
		name     string
		sim      *smc.Simulator
		method   string
		path     string
		body     string
		wantCode int
		wantKind types.ErrorKind
	}{
		{"missing sensor", smc.NewDefaultSimulator(), http.MethodGet, "/sensors/ZZZZ", "", http.StatusNotFound, types.KindKeyNotFound},
		{"bad sensor key", smc.NewDefaultSimulator(), http.MethodGet, "/sensors/TOOLONG", "", http.StatusBadRequest, types.KindBadRequest},
		{"bad fan index", smc.NewDefaultSimulator(), http.MethodGet, "/fans/abc", "", http.StatusBadRequest, types.KindBadRequest},
		{"bad body", smc.NewDefaultSimulator(), http.MethodPut, "/charging", `"yes"`, http.StatusBadRequest, types.KindBadRequest},
		{"unsupported discharge", bare, http.MethodPut, "/discharge", "true", http.StatusNotImplemented, types.KindUnsupportedOperation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, tt.sim)
			w := do(r, tt.method, tt.path, tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d, body = %s", w.Code, tt.wantCode, w.Body)
			}
			var resp types.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", resp.Kind, tt.wantKind)
			}
			if resp.Error == "" {
				t.Error("empty error message")
			}
		})
	}
}

func TestRouterCapabilities(t *testing.T) {
	r := newTestRouter(t, smc.NewDefaultSimulator())

	w := do(r, http.MethodGet, "/capabilities", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var caps smc.CapabilitySummary
	if err := json.Unmarshal(w.Body.Bytes(), &caps); err != nil {
		t.Fatal(err)
	}
	if caps.ChargeControlKey != smc.ChargeInhibitKey || caps.FanCount != 2 {
		t.Errorf("capabilities = %+v", caps)
	}
}

func TestRouterMetrics(t *testing.T) {
	r := newTestRouter(t, smc.NewDefaultSimulator())

	do(r, http.MethodPut, "/charge-limit", "80")
	w := do(r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`smcctl_controller_operations_total{op="setChargeLimit",result="ok"} 1`,
		`smcctl_rpc_requests_total{code="200",method="PUT",route="/charge-limit"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
