/*
Package monitoring collects Prometheus metrics for the HTTP surface and the
execution pipeline.

Every Metrics value owns its registry, so tests and embedded pipelines can
create as many as they like.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "fetch")
	// ... run the stage ...
	timer.Stop("ok")
*/
package monitoring
