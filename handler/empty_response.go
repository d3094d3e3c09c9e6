package handler

import "net/http"

type emptyResponse struct {
	status int
}

func (e emptyResponse) Render(w http.ResponseWriter, r *http.Request) error {
	w.WriteHeader(e.status)
	return nil
}

// Empty creates a bodyless 204 No Content response, used for updates that
// return nothing.
//
//	return handler.Empty()
func Empty() Response {
	return emptyResponse{status: http.StatusNoContent}
}

// EmptyWithStatus creates a bodyless response with a custom status code.
//
//	return handler.EmptyWithStatus(http.StatusAccepted)
func EmptyWithStatus(status int) Response {
	return emptyResponse{status: status}
}
