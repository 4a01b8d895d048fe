package agent

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cshariq/Sapphire-sub003/pkg/config"
	"github.com/cshariq/Sapphire-sub003/pkg/types"
	"github.com/cshariq/Sapphire-sub003/pkg/utils/ginlog"
)

// StateResponse is the body of GET /state.
type StateResponse struct {
	Charge ChargeSnapshot `json:"charge"`
	Policy config.Policy  `json:"policy"`
}

// NewRouter exposes the agent state for the UI and the CLI.
func NewRouter(a *Agent) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginlog.Logger(logrus.StandardLogger()))

	router.GET("/state", a.getState)
	router.GET("/calibration", a.getCalibration)
	router.POST("/calibration/start", a.startCalibration)
	router.POST("/calibration/cancel", a.cancelCalibration)
	router.GET("/fans", a.getFans)
	router.PUT("/fans/:index/mode", a.setFanMode)
	router.GET("/sensors", a.getSensors)
	router.GET("/history", a.getHistory)
	router.GET("/events", a.streamEvents)

	return router
}

func (a *Agent) getState(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, StateResponse{
		Charge: a.Charge.Snapshot(),
		Policy: a.settings.Policy(),
	})
}

func (a *Agent) getCalibration(c *gin.Context) {
	st := a.Calibration.Status()
	if next, _ := a.Cron.Status(); !next.IsZero() {
		st.NextScheduled = next
	}
	if a.history != nil {
		if last, ok, err := a.history.LastCalibration(); err != nil {
			logrus.WithError(err).Warn("failed to read last scheduled calibration")
		} else if ok {
			st.LastScheduled = last
		}
	}
	c.IndentedJSON(http.StatusOK, st)
}

func (a *Agent) startCalibration(c *gin.Context) {
	if err := a.Calibration.Start(c.Request.Context()); err != nil {
		abortWith(c, http.StatusBadGateway, err)
		return
	}
	c.IndentedJSON(http.StatusOK, a.Calibration.Status())
}

func (a *Agent) cancelCalibration(c *gin.Context) {
	a.Calibration.Cancel(c.Request.Context())
	c.IndentedJSON(http.StatusOK, a.Calibration.Status())
}

func (a *Agent) getFans(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, a.Fans.Fans())
}

func (a *Agent) setFanMode(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		abortWith(c, http.StatusBadRequest, err)
		return
	}
	var mode config.FanMode
	if err := c.ShouldBindJSON(&mode); err != nil {
		abortWith(c, http.StatusBadRequest, err)
		return
	}
	if err := mode.Validate(); err != nil {
		abortWith(c, http.StatusBadRequest, err)
		return
	}
	if err := a.Fans.SetMode(c.Request.Context(), index, mode); err != nil {
		abortWith(c, http.StatusBadGateway, err)
		return
	}
	if err := a.settings.Save(); err != nil {
		logrus.WithError(err).Warn("failed to save settings")
	}
	c.IndentedJSON(http.StatusOK, "ok")
}

func (a *Agent) getSensors(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, a.Fans.Sensors())
}

func (a *Agent) getHistory(c *gin.Context) {
	if a.history == nil {
		c.IndentedJSON(http.StatusOK, []HistoryEntry{})
		return
	}
	n, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || n <= 0 {
		abortWith(c, http.StatusBadRequest, err)
		return
	}
	entries, err := a.history.Recent(n)
	if err != nil {
		abortWith(c, http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, entries)
}

func (a *Agent) streamEvents(c *gin.Context) {
	ch := a.hub.Subscribe()
	defer a.hub.Unsubscribe(ch)

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		}
	})
}

func abortWith(c *gin.Context, status int, err error) {
	if err == nil {
		err = types.ErrBadRequest
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, types.ErrorResponse{Error: err.Error(), Kind: types.KindOf(err)})
}
