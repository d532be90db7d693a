// Package service holds the collaborators the control service depends
// on.
//
//   - ConfigurationService: owns the desired Deployment, persists every
//     change through a ConfigRepository and notifies subscribers
//   - ClusterStateService: merges NodeState reports into one view that
//     AsDeployment materializes in the configuration shape
//   - DeploymentFile: loads a YAML deployment file and re-saves it into
//     the configuration service whenever the file changes
//
// Storage dependencies are interfaces so services can be tested with
// in-memory fakes.
package service
