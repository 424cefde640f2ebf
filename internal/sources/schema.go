package sources

// File is the top-level structure of the optional sources.yaml.
type File struct {
	Endpoints []string   `yaml:"endpoints,omitempty"`
	Zones     []ZoneSpec `yaml:"zones,omitempty"`
}

// ZoneSpec names an IANA location and the label it is published under.
type ZoneSpec struct {
	Label    string `yaml:"label"`
	Location string `yaml:"location"`
}
