// Package config implements the definition-parser collaborator named
// in §6: translating between a container definition and its on-disk
// XML representation, and persisting/loading definitions under a
// configured directory.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/lxcbox/lxcbox/domain"
)

// xmlDomain mirrors domain.Definition in wire form. Field names match
// libvirt-style domain XML closely enough for a human to recognize it,
// without trying to be a compatible subset.
type xmlDomain struct {
	XMLName    xml.Name      `xml:"domain"`
	UUID       string        `xml:"uuid"`
	Name       string        `xml:"name"`
	OSType     string        `xml:"os>type"`
	MaxMemory  uint64        `xml:"memory"`
	InitPath   string        `xml:"init,omitempty"`
	Console    string        `xml:"console,omitempty"`
	Interfaces []xmlIface    `xml:"devices>interface"`
}

type xmlIface struct {
	Type          string `xml:"type,attr"`
	Target        string `xml:"source"`
	SubnetCIDR    string `xml:"subnet,omitempty"`
	NAT           bool   `xml:"nat,omitempty"`
	ParentVeth    string `xml:"parent_veth,omitempty"`
	ContainerVeth string `xml:"container_veth,omitempty"`
}

/**
 * Parse decodes an XML container definition. The stdlib's encoding/xml
 * is used directly: this driver's persisted format is private to it
 * (not a libvirt-compatible document), so there is no schema-specific
 * parser in the corpus to lean on, and the package has no streaming or
 * namespace-heavy requirements that would call for a third-party
 * XML library.
 */
func Parse(data []byte) (*domain.Definition, error) {
	var xd xmlDomain
	if err := xml.Unmarshal(data, &xd); err != nil {
		return nil, fmt.Errorf("config: parse xml: %w", err)
	}

	id, err := uuid.Parse(xd.UUID)
	if err != nil {
		return nil, fmt.Errorf("config: invalid uuid %q: %w", xd.UUID, err)
	}

	def := &domain.Definition{
		UUID:      id,
		Name:      xd.Name,
		OSHint:    xd.OSType,
		MaxMemory: xd.MaxMemory,
		InitPath:  xd.InitPath,
		Console:   xd.Console,
	}

	for _, xi := range xd.Interfaces {
		typ := domain.NetIfaceBridge
		if xi.Type == "network" {
			typ = domain.NetIfaceNetwork
		}
		def.Interfaces = append(def.Interfaces, &domain.NetIface{
			Type:          typ,
			Target:        xi.Target,
			SubnetCIDR:    xi.SubnetCIDR,
			NAT:           xi.NAT,
			ParentVeth:    xi.ParentVeth,
			ContainerVeth: xi.ContainerVeth,
		})
	}

	return def, nil
}

// Serialize encodes a container definition as indented XML.
func Serialize(def *domain.Definition) ([]byte, error) {
	xd := xmlDomain{
		UUID:      def.UUID.String(),
		Name:      def.Name,
		OSType:    def.OSHint,
		MaxMemory: def.MaxMemory,
		InitPath:  def.InitPath,
		Console:   def.Console,
	}

	for _, iface := range def.Interfaces {
		typ := "bridge"
		if iface.Type == domain.NetIfaceNetwork {
			typ = "network"
		}
		xd.Interfaces = append(xd.Interfaces, xmlIface{
			Type:          typ,
			Target:        iface.Target,
			SubnetCIDR:    iface.SubnetCIDR,
			NAT:           iface.NAT,
			ParentVeth:    iface.ParentVeth,
			ContainerVeth: iface.ContainerVeth,
		})
	}

	out, err := xml.MarshalIndent(xd, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("config: serialize xml: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// Path returns the config file path for a definition name, per §6's
// fixed layout "<configDir>/<name>.xml".
func Path(configDir, name string) string {
	return filepath.Join(configDir, name+".xml")
}

// Save persists a definition's XML to its config file, creating
// configDir if needed.
func Save(configDir string, def *domain.Definition) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("config: mkdir %s: %w", configDir, err)
	}
	data, err := Serialize(def)
	if err != nil {
		return err
	}
	return os.WriteFile(Path(configDir, def.Name), data, 0o644)
}

// Delete removes a definition's persisted config file, tolerating
// "already gone".
func Delete(configDir string, name string) error {
	err := os.Remove(Path(configDir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("config: delete %s: %w", name, err)
	}
	return nil
}

/**
 * LoadAll reads every *.xml file in configDir and parses it into a
 * definition, used by driver startup to repopulate the registry from
 * disk. Malformed files are skipped with their error collected rather
 * than aborting the whole load.
 */
func LoadAll(configDir string) ([]*domain.Definition, []error) {
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, []error{fmt.Errorf("config: read dir %s: %w", configDir, err)}
	}

	var defs []*domain.Definition
	var errs []error
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".xml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(configDir, e.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		def, err := Parse(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}
		defs = append(defs, def)
	}
	return defs, errs
}
