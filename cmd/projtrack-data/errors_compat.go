package main

import "errors"

// Command files classify errors through these two helpers only.
func as(err error, target any) bool { return errors.As(err, target) }

func is(err, target error) bool { return errors.Is(err, target) }
