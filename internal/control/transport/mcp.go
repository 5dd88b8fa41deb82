package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/orbitrap-sim/lcmssim/internal/control"
	"github.com/orbitrap-sim/lcmssim/internal/spectrum"
)

// MCPServer exposes the six non-streaming control-surface operations as
// MCP tools, following the teacher's own mcp_server.go pattern: one
// server.NewMCPServer, one AddTool per operation, handlers that read
// arguments off mcp.CallToolRequest and return mcp.NewToolResultText with a
// JSON body.
type MCPServer struct {
	surface    *control.Surface
	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

// NewMCPServer builds and registers the tool surface for name/version (the
// simulator's own name/version, not the instrument's).
func NewMCPServer(surface *control.Surface, name, version string) *MCPServer {
	m := &MCPServer{surface: surface}
	m.mcpServer = server.NewMCPServer(name, version, server.WithToolCapabilities(true))
	m.registerTools()
	m.httpServer = server.NewStreamableHTTPServer(m.mcpServer)
	return m
}

// Handler returns the net/http handler MCP clients speak to.
func (m *MCPServer) Handler() http.Handler {
	return m.httpServer
}

func (m *MCPServer) registerTools() {
	m.mcpServer.AddTool(
		mcp.NewTool("get_instrument_info",
			mcp.WithDescription("Return the simulated instrument's static descriptor: name, id, model, firmware/simulator version, supported analyzers and fragmentation types, and mass-range limits. Never fails."),
		),
		m.handleGetInstrumentInfo,
	)

	m.mcpServer.AddTool(
		mcp.NewTool("get_status",
			mcp.WithDescription("Return the current acquisition state, cumulative scan count, and session id. Never fails."),
		),
		m.handleGetStatus,
	)

	m.mcpServer.AddTool(
		mcp.NewTool("start_acquisition",
			mcp.WithDescription("Start a simulated acquisition run. Rejected with success=false unless the current state is Idle or Completed."),
			mcp.WithNumber("scan_rate", mcp.Description("Total scans/s, MS1+MS2 combined (default 2.0)")),
			mcp.WithNumber("ms2_per_ms1", mcp.Description("Number of MS2 scans per MS1 cycle (default 4)")),
			mcp.WithNumber("min_mz", mcp.Description("Minimum m/z in Da (default 200.0)")),
			mcp.WithNumber("max_mz", mcp.Description("Maximum m/z in Da (default 2000.0)")),
			mcp.WithNumber("random_seed", mcp.Description("0 = entropy-seeded, else deterministic")),
			mcp.WithNumber("max_scans", mcp.Description("Optional termination cap on total scans")),
			mcp.WithNumber("max_duration_seconds", mcp.Description("Optional termination cap on elapsed seconds")),
		),
		m.handleStartAcquisition,
	)

	m.mcpServer.AddTool(
		mcp.NewTool("stop_acquisition",
			mcp.WithDescription("Request termination of the current acquisition. Always succeeds and returns the cumulative scan count."),
		),
		m.handleStopAcquisition,
	)

	m.mcpServer.AddTool(
		mcp.NewTool("pause_acquisition",
			mcp.WithDescription("Reserved; currently always replies success=false, \"not implemented\"."),
		),
		m.handlePauseAcquisition,
	)

	m.mcpServer.AddTool(
		mcp.NewTool("resume_acquisition",
			mcp.WithDescription("Reserved; currently always replies success=false, \"not implemented\"."),
		),
		m.handleResumeAcquisition,
	)
}

func (m *MCPServer) handleGetInstrumentInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonToolResult(m.surface.GetInstrumentInfo(ctx))
}

func (m *MCPServer) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonToolResult(m.surface.GetStatus(ctx))
}

func (m *MCPServer) handleStartAcquisition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := spectrum.DefaultParams()
	params.ScanRate = request.GetFloat("scan_rate", params.ScanRate)
	params.MS2PerMS1 = int32(request.GetFloat("ms2_per_ms1", float64(params.MS2PerMS1)))
	params.MinMz = request.GetFloat("min_mz", params.MinMz)
	params.MaxMz = request.GetFloat("max_mz", params.MaxMz)
	params.RandomSeed = int64(request.GetFloat("random_seed", 0))

	req := control.StartRequest{Simulation: &params}
	if v := request.GetFloat("max_scans", -1); v >= 0 {
		n := int32(v)
		req.MaxScans = &n
	}
	if v := request.GetFloat("max_duration_seconds", -1); v >= 0 {
		req.MaxDurationSeconds = &v
	}

	return jsonToolResult(m.surface.StartAcquisition(ctx, req))
}

func (m *MCPServer) handleStopAcquisition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonToolResult(m.surface.StopAcquisition(ctx))
}

func (m *MCPServer) handlePauseAcquisition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonToolResult(m.surface.PauseAcquisition(ctx))
}

func (m *MCPServer) handleResumeAcquisition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonToolResult(m.surface.ResumeAcquisition(ctx))
}

func jsonToolResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
