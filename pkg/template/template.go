package template

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// MetadataType is the resource type the CDK adds to every stack to record
// construct metadata. It has no drift semantics of its own.
const MetadataType = "AWS::CDK::Metadata"

// Template is a CloudFormation template document
type Template struct {
	Description string                 `json:"Description,omitempty"`
	Parameters  map[string]interface{} `json:"Parameters,omitempty"`
	Mappings    map[string]interface{} `json:"Mappings,omitempty"`
	Conditions  map[string]interface{} `json:"Conditions,omitempty"`
	Resources   map[string]Resource    `json:"Resources,omitempty"`
	Outputs     map[string]interface{} `json:"Outputs,omitempty"`
}

// Resource is a single entry of the template's Resources section
type Resource struct {
	Type                string                 `json:"Type"`
	Properties          map[string]interface{} `json:"Properties,omitempty"`
	DependsOn           interface{}            `json:"DependsOn,omitempty"`
	Condition           string                 `json:"Condition,omitempty"`
	DeletionPolicy      string                 `json:"DeletionPolicy,omitempty"`
	UpdateReplacePolicy string                 `json:"UpdateReplacePolicy,omitempty"`
	Metadata            map[string]interface{} `json:"Metadata,omitempty"`
}

// Empty returns a template without any content, used as the baseline for
// stacks that are not deployed yet.
func Empty() *Template {
	return &Template{}
}

// Parse decodes a template body. JSON bodies are decoded directly, anything
// else is treated as YAML with CloudFormation short-form intrinsics.
func Parse(body []byte) (*Template, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return Empty(), nil
	}

	if body[0] != '{' {
		converted, err := yamlToJSON(body)
		if err != nil {
			return nil, err
		}
		body = converted
	}

	var t Template
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, errors.Wrap(err, "failed to parse template")
	}
	return &t, nil
}

// LogicalIDs returns the logical ids of all declared resources, sorted
func (t *Template) LogicalIDs() []string {
	if t == nil {
		return nil
	}
	ids := make([]string, 0, len(t.Resources))
	for id := range t.Resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResourceType returns the declared type of a resource, or "" if the
// template does not declare it.
func (t *Template) ResourceType(logicalID string) string {
	if t == nil {
		return ""
	}
	return t.Resources[logicalID].Type
}

func yamlToJSON(body []byte) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse template")
	}
	if len(doc.Content) == 0 {
		return []byte("{}"), nil
	}

	v, err := fromNode(doc.Content[0])
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse template")
	}
	return json.Marshal(v)
}

// fromNode converts a YAML node into plain Go values, expanding short-form
// intrinsics such as !Ref and !GetAtt into their long form.
func fromNode(n *yaml.Node) (interface{}, error) {
	var v interface{}
	switch n.Kind {
	case yaml.AliasNode:
		return fromNode(n.Alias)
	case yaml.MappingNode:
		m := make(map[string]interface{}, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			val, err := fromNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			m[n.Content[i].Value] = val
		}
		v = m
	case yaml.SequenceNode:
		s := make([]interface{}, 0, len(n.Content))
		for _, c := range n.Content {
			val, err := fromNode(c)
			if err != nil {
				return nil, err
			}
			s = append(s, val)
		}
		v = s
	default:
		tag := n.Tag
		if strings.HasPrefix(tag, "!") && !strings.HasPrefix(tag, "!!") {
			// decode the scalar without the intrinsic tag
			n.Tag = ""
		}
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		n.Tag = tag
	}

	if !strings.HasPrefix(n.Tag, "!") || strings.HasPrefix(n.Tag, "!!") {
		return v, nil
	}

	fn := strings.TrimPrefix(n.Tag, "!")
	if fn == "GetAtt" {
		if s, ok := v.(string); ok {
			parts := strings.SplitN(s, ".", 2)
			list := make([]interface{}, len(parts))
			for i, p := range parts {
				list[i] = p
			}
			v = list
		}
	}
	if fn != "Ref" && fn != "Condition" {
		fn = "Fn::" + fn
	}
	return map[string]interface{}{fn: v}, nil
}
