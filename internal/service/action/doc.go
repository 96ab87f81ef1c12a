// Package action executes resolved configurations: templated messages
// sent per contact, distress and covert calls handed to the orchestrator
// without waiting for sensor context, and assistant questions.
//
// Execution state is published through Status for the presentation layer;
// the package renders nothing itself.
package action
