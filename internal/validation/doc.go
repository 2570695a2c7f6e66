// Package validation defines the verdict, job and collaborator types shared by
// the bulk validation engine. Subsystems depend on the interfaces declared
// here rather than on each other so the executor, stores and API can be tested
// in isolation.
package validation
