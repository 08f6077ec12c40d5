package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           modelbridge API
// @version         1.0
// @description     HTTP API bridging a local LM Studio server with a hosted model catalog: snapshots, load/unload, merged catalog, embeddings.
//
// @contact.name   modelbridge maintainers
// @contact.url    https://github.com/your-org/modelbridge
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
