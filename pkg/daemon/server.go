package daemon

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cshariq/Sapphire-sub003/pkg/smc"
	"github.com/cshariq/Sapphire-sub003/pkg/types"
	"github.com/cshariq/Sapphire-sub003/pkg/utils/ginlog"
	"github.com/cshariq/Sapphire-sub003/pkg/version"
)

type server struct {
	svc     *Service
	metrics *Metrics
}

// NewRouter exposes svc over HTTP. When gatherer is non-nil, GET /metrics
// serves it.
func NewRouter(svc *Service, metrics *Metrics, gatherer prometheus.Gatherer) *gin.Engine {
	s := &server{svc: svc, metrics: metrics}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginlog.Logger(logrus.StandardLogger()))
	router.Use(s.countRequests)

	router.PUT("/charge-limit", s.setChargeLimit)
	router.PUT("/charging", s.enableCharging)
	router.PUT("/discharge", s.setDischarge)
	router.PUT("/indicator", s.setIndicatorColor)
	router.POST("/calibration-setup", s.startCalibrationSetup)
	router.GET("/battery-charge", s.getBatteryCharge)
	router.GET("/battery-temperature", s.getBatteryTemperature)
	router.GET("/fans", s.getFanCount)
	router.GET("/fans/:index", s.getFanInfo)
	router.PUT("/fans/:index/mode", s.setFanMode)
	router.PUT("/fans/:index/target", s.setFanTargetSpeed)
	router.PUT("/fans/:index/constant", s.setFanConstantRPM)
	router.GET("/keys", s.getAllKeys)
	router.GET("/sensors/:key", s.getSensorValue)
	router.PUT("/low-power-mode", s.setLowPowerMode)
	router.PUT("/system-sleep", s.setSystemSleep)
	router.GET("/capabilities", s.getCapabilities)
	router.GET("/version", s.getVersion)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return router
}

func (s *server) countRequests(c *gin.Context) {
	c.Next()
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	s.metrics.observeRequest(c.Request.Method, route, c.Writer.Status())
}

func (s *server) setChargeLimit(c *gin.Context) {
	var percent int
	if !bindJSON(c, &percent) {
		return
	}
	limit, err := s.svc.SetChargeLimit(percent)
	if err != nil {
		writeError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, types.LimitResponse{Limit: limit})
}

func (s *server) enableCharging(c *gin.Context) {
	var enabled bool
	if !bindJSON(c, &enabled) {
		return
	}
	writeResult(c, s.svc.EnableCharging(enabled))
}

func (s *server) setDischarge(c *gin.Context) {
	var discharging bool
	if !bindJSON(c, &discharging) {
		return
	}
	writeResult(c, s.svc.SetDischarge(discharging))
}

func (s *server) setIndicatorColor(c *gin.Context) {
	var code int
	if !bindJSON(c, &code) {
		return
	}
	writeResult(c, s.svc.SetIndicatorColor(code))
}

func (s *server) startCalibrationSetup(c *gin.Context) {
	writeResult(c, s.svc.StartCalibrationSetup())
}

func (s *server) getBatteryCharge(c *gin.Context) {
	charge, err := s.svc.BatteryCharge()
	if err != nil {
		writeError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, charge)
}

func (s *server) getBatteryTemperature(c *gin.Context) {
	t, err := s.svc.BatteryTemperature()
	if err != nil {
		writeError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, types.ValueResponse{Key: smc.BatteryTemperatureKey, Value: t})
}

func (s *server) getFanCount(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.svc.FanCount())
}

func (s *server) getFanInfo(c *gin.Context) {
	index, ok := fanIndex(c)
	if !ok {
		return
	}
	info, err := s.svc.FanInfo(index)
	if err != nil {
		writeError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, info)
}

func (s *server) setFanMode(c *gin.Context) {
	index, ok := fanIndex(c)
	if !ok {
		return
	}
	var req types.FanModeRequest
	if !bindJSON(c, &req) {
		return
	}
	writeResult(c, s.svc.SetFanMode(index, req.Mode))
}

func (s *server) setFanTargetSpeed(c *gin.Context) {
	s.writeFanSpeed(c, s.svc.SetFanTargetSpeed)
}

func (s *server) setFanConstantRPM(c *gin.Context) {
	s.writeFanSpeed(c, s.svc.SetFanConstantRPM)
}

func (s *server) writeFanSpeed(c *gin.Context, write func(index, rpm int) (int, error)) {
	index, ok := fanIndex(c)
	if !ok {
		return
	}
	var req types.RPMRequest
	if !bindJSON(c, &req) {
		return
	}
	stored, err := write(index, req.RPM)
	if err != nil {
		writeError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, types.RPMResponse{RPM: stored})
}

func (s *server) getAllKeys(c *gin.Context) {
	keys, err := s.svc.AllKeys()
	if err != nil {
		writeError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, keys)
}

func (s *server) getSensorValue(c *gin.Context) {
	key := c.Param("key")
	if len(key) != 4 {
		writeError(c, pkgerrors.Wrapf(types.ErrBadRequest, "key %q is not four characters", key))
		return
	}
	v, err := s.svc.SensorValue(key)
	if err != nil {
		writeError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, types.ValueResponse{Key: key, Value: v})
}

func (s *server) setLowPowerMode(c *gin.Context) {
	var enabled bool
	if !bindJSON(c, &enabled) {
		return
	}
	writeResult(c, s.svc.SetLowPowerMode(enabled))
}

func (s *server) setSystemSleep(c *gin.Context) {
	var prevent bool
	if !bindJSON(c, &prevent) {
		return
	}
	if prevent {
		writeResult(c, s.svc.PreventSystemSleep())
		return
	}
	writeResult(c, s.svc.AllowSystemSleep())
}

func (s *server) getCapabilities(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.svc.Capabilities().Summary())
}

func (s *server) getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

func fanIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		writeError(c, pkgerrors.Wrapf(types.ErrBadRequest, "invalid fan index %q", c.Param("index")))
		return 0, false
	}
	return index, true
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, pkgerrors.Wrap(types.ErrBadRequest, err.Error()))
		return false
	}
	return true
}

func writeResult(c *gin.Context, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, "ok")
}

func writeError(c *gin.Context, err error) {
	kind := types.KindOf(err)
	status := statusForKind(kind)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, types.ErrorResponse{Error: err.Error(), Kind: kind})
}

func statusForKind(kind types.ErrorKind) int {
	switch kind {
	case types.KindBadRequest:
		return http.StatusBadRequest
	case types.KindUnauthorized:
		return http.StatusForbidden
	case types.KindKeyNotFound:
		return http.StatusNotFound
	case types.KindUnsupportedOperation, types.KindUnsupportedType:
		return http.StatusNotImplemented
	case types.KindWriteRejected:
		return http.StatusBadGateway
	case types.KindChannelUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
