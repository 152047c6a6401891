package registry

// File represents the top-level structure of services.yaml
//
//	services:
//	  payments:
//	    url: http://payments:3004
//	    health: /health
type File struct {
	Services map[string]ServiceProps `yaml:"services"`
}

// ServiceProps contains the properties of one downstream service
type ServiceProps struct {
	URL    string `yaml:"url"`
	Health string `yaml:"health,omitempty"`
}
