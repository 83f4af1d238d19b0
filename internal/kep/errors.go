package kep

import "errors"

var errUnsupportedCurve = errors.New("kep: only EC P-256 JWKs are accepted")
