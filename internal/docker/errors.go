package docker

import (
	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/client"

	"github.com/mmr-tortoise/dockstack/internal/model"
)

// translateError classifies an SDK error. The daemon's message is kept in
// the wrapped error; msg describes the sub-operation that failed.
//
// Invalid-parameter responses stay daemon errors: validation errors are
// reserved for checks made before any request is sent.
func translateError(msg string, err error) error {
	if err == nil {
		return nil
	}

	var kind model.ErrorKind
	switch {
	case client.IsErrConnectionFailed(err):
		kind = model.KindConnection
	case cerrdefs.IsNotFound(err):
		kind = model.KindNotFound
	case cerrdefs.IsConflict(err), cerrdefs.IsAlreadyExists(err):
		kind = model.KindConflict
	case cerrdefs.IsUnauthorized(err), cerrdefs.IsPermissionDenied(err):
		kind = model.KindAuth
	default:
		kind = model.KindDaemon
	}
	return model.WrapError(kind, msg, err)
}
