package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           preloadd API
// @version         1.0
// @description     HTTP API for image preloading and cache diagnostics.
//
// @contact.name   preloadd maintainers
// @contact.url    https://github.com/your-org/preloadd
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
