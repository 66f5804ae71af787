package main

import "preloadd/internal/preloadctl"

func main() { preloadctl.Main() }
