package api

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Root and health endpoints
	s.router.GET("/", s.handleRoot)
	s.router.GET("/healthz", s.handleHealthz)

	// Generation-stats stream
	s.router.GET("/ws", s.handleWebSocket)

	// API v1 group
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/status", s.handleGetStatus)
		v1.GET("/stats", s.handleGetStats)
		v1.GET("/pareto", s.handleGetPareto)
	}
}
