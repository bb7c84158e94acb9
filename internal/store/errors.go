package store

import "errors"

var errStoreClosed = errors.New("store closed")
