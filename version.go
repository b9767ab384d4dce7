package main

// Version and Gitref are set at build time via -ldflags.
var (
	Version = "unknown"
	Gitref  = "unknown"
)
