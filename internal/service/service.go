// Package service exposes the merge-readiness use cases to the transport layer.
package service

import "github.com/google/wire"

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewMergeService)
