package core

// MaxEvents bounds the descriptors reported by one readiness wait
const MaxEvents = 64

// InheritedListenerFD is where a re-executed worker finds the listening
// socket (the first entry of exec.Cmd.ExtraFiles).
const InheritedListenerFD = 3

// WorkerIDEnv carries the worker index to a re-executed worker
const WorkerIDEnv = "STATIC_SERVER_WORKER_ID"

// standardMethods bounds the method label of request metrics
var standardMethods = map[string]bool{
	"GET":     true,
	"HEAD":    true,
	"POST":    true,
	"PUT":     true,
	"DELETE":  true,
	"PATCH":   true,
	"OPTIONS": true,
	"CONNECT": true,
	"TRACE":   true,
}

func methodLabel(method string) string {
	if standardMethods[method] {
		return method
	}
	return "OTHER"
}
