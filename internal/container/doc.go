// Package container adapts Docker Engine containers to the uniform resource
// lifecycle.
//
// Containers are addressed by anything the daemon resolves: full id, short
// id or name. Resources report the 12 character short id.
//
// Verb mapping:
//   - Start: ContainerStart
//   - Stop: ContainerStop (graceful, daemon default timeout)
//   - Restart: ContainerRestart
//   - Shutdown: ContainerKill when forced, ContainerStop otherwise. Saving
//     state is not supported.
//   - Remove: ContainerRemove, passing the force flag through
//
// Every daemon call is bounded by Options.Timeout and its failure is
// translated into a *resource.Error before it is returned.
package container
