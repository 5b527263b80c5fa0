package cdk

const (
	// StackArtifactType marks cloud assembly artifacts that are CloudFormation stacks
	StackArtifactType = "aws:cloudformation:stack"
	// NestedAssemblyType marks artifacts pointing to a nested cloud assembly (CDK stages)
	NestedAssemblyType = "cdk:cloud-assembly"
)

// CDKConfig represents the cdk.json configuration
type CDKConfig struct {
	App     string                 `json:"app"`
	Context map[string]interface{} `json:"context"`
}

// Manifest represents the manifest.json of a cloud assembly
type Manifest struct {
	Version   string              `json:"version"`
	Artifacts map[string]Artifact `json:"artifacts"`
}

// Artifact is a single entry of the cloud assembly manifest
type Artifact struct {
	Type        string             `json:"type"`
	DisplayName string             `json:"displayName"`
	Properties  ArtifactProperties `json:"properties"`
}

// ArtifactProperties holds the artifact properties used here
type ArtifactProperties struct {
	TemplateFile  string `json:"templateFile"`
	StackName     string `json:"stackName"`
	DirectoryName string `json:"directoryName"`
}
