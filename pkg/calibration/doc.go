// Package calibration defines the battery calibration state shared by the
// agent, its HTTP API and the CLI:
//
//   - State: the tagged calibration state (kind plus the payload of that kind)
//   - Record: what the agent persists so an interrupted run can resume
//   - Status: the view returned by the agent API
package calibration
