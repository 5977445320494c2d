package vrm

import "encoding/json"

// ExtensionName is the key of the VRM 0.x extension block.
const ExtensionName = "VRM"

// VRM is the VRM 0.x extension block.
type VRM struct {
	ExporterVersion    string              `json:"exporterVersion,omitempty"`
	SpecVersion        string              `json:"specVersion,omitempty"`
	Meta               *Meta               `json:"meta,omitempty"`
	Humanoid           *Humanoid           `json:"humanoid,omitempty"`
	FirstPerson        *FirstPerson        `json:"firstPerson,omitempty"`
	BlendShapeMaster   *BlendShapeMaster   `json:"blendShapeMaster,omitempty"`
	SecondaryAnimation *SecondaryAnimation `json:"secondaryAnimation,omitempty"`
	MaterialProperties []*MaterialProperty `json:"materialProperties,omitempty"`

	Unmodeled Members `json:"-"`
}

// Meta is the avatar's license and author information.
type Meta struct {
	Title                string `json:"title,omitempty"`
	Version              string `json:"version,omitempty"`
	Author               string `json:"author,omitempty"`
	ContactInformation   string `json:"contactInformation,omitempty"`
	Reference            string `json:"reference,omitempty"`
	Texture              *int   `json:"texture,omitempty"` // thumbnail
	AllowedUserName      string `json:"allowedUserName,omitempty"`
	ViolentUssageName    string `json:"violentUssageName,omitempty"`
	SexualUssageName     string `json:"sexualUssageName,omitempty"`
	CommercialUssageName string `json:"commercialUssageName,omitempty"`
	OtherPermissionURL   string `json:"otherPermissionUrl,omitempty"`
	LicenseName          string `json:"licenseName,omitempty"`
	OtherLicenseURL      string `json:"otherLicenseUrl,omitempty"`

	Unmodeled Members `json:"-"`
}

// Humanoid maps humanoid bone names to nodes.
type Humanoid struct {
	HumanBones        []*HumanBone `json:"humanBones"`
	ArmStretch        *float64     `json:"armStretch,omitempty"`
	LegStretch        *float64     `json:"legStretch,omitempty"`
	UpperArmTwist     *float64     `json:"upperArmTwist,omitempty"`
	LowerArmTwist     *float64     `json:"lowerArmTwist,omitempty"`
	UpperLegTwist     *float64     `json:"upperLegTwist,omitempty"`
	LowerLegTwist     *float64     `json:"lowerLegTwist,omitempty"`
	FeetSpacing       *float64     `json:"feetSpacing,omitempty"`
	HasTranslationDoF *bool        `json:"hasTranslationDoF,omitempty"`

	Unmodeled Members `json:"-"`
}

// HumanBone names one humanoid bone.
type HumanBone struct {
	Bone             string          `json:"bone"`
	Node             int             `json:"node"`
	UseDefaultValues bool            `json:"useDefaultValues"`
	Min              json.RawMessage `json:"min,omitempty"`
	Max              json.RawMessage `json:"max,omitempty"`
	Center           json.RawMessage `json:"center,omitempty"`
	AxisLength       *float64        `json:"axisLength,omitempty"`

	Unmodeled Members `json:"-"`
}

// FirstPerson configures the first-person camera and mesh visibility.
type FirstPerson struct {
	FirstPersonBone       *int              `json:"firstPersonBone,omitempty"`
	FirstPersonBoneOffset json.RawMessage   `json:"firstPersonBoneOffset,omitempty"`
	MeshAnnotations       []*MeshAnnotation `json:"meshAnnotations,omitempty"`
	LookAtTypeName        string            `json:"lookAtTypeName,omitempty"`
	LookAtHorizontalInner json.RawMessage   `json:"lookAtHorizontalInner,omitempty"`
	LookAtHorizontalOuter json.RawMessage   `json:"lookAtHorizontalOuter,omitempty"`
	LookAtVerticalDown    json.RawMessage   `json:"lookAtVerticalDown,omitempty"`
	LookAtVerticalUp      json.RawMessage   `json:"lookAtVerticalUp,omitempty"`

	Unmodeled Members `json:"-"`
}

// MeshAnnotation sets first-person visibility of one mesh.
type MeshAnnotation struct {
	Mesh            int    `json:"mesh"`
	FirstPersonFlag string `json:"firstPersonFlag"`

	Unmodeled Members `json:"-"`
}

// BlendShapeMaster holds every blendshape group.
type BlendShapeMaster struct {
	BlendShapeGroups []*BlendShapeGroup `json:"blendShapeGroups"`

	Unmodeled Members `json:"-"`
}

// BlendShapeGroup is one named facial pose.
type BlendShapeGroup struct {
	Name           string            `json:"name"`
	PresetName     string            `json:"presetName"`
	Binds          []*BlendShapeBind `json:"binds"`
	MaterialValues json.RawMessage   `json:"materialValues,omitempty"`
	IsBinary       bool              `json:"isBinary,omitempty"`

	Unmodeled Members `json:"-"`
}

// BlendShapeBind drives one morph target of one mesh with a weight in [0, 100].
type BlendShapeBind struct {
	Mesh   int     `json:"mesh"`
	Index  int     `json:"index"`
	Weight float64 `json:"weight"`

	Unmodeled Members `json:"-"`
}

// SecondaryAnimation holds spring bone settings.
type SecondaryAnimation struct {
	BoneGroups     []*SpringBoneGroup `json:"boneGroups"`
	ColliderGroups []*ColliderGroup   `json:"colliderGroups"`

	Unmodeled Members `json:"-"`
}

// SpringBoneGroup simulates the subtrees rooted at Bones.
type SpringBoneGroup struct {
	Comment        string          `json:"comment,omitempty"`
	Stiffiness     float64         `json:"stiffiness"`
	GravityPower   float64         `json:"gravityPower"`
	GravityDir     json.RawMessage `json:"gravityDir,omitempty"`
	DragForce      float64         `json:"dragForce"`
	Center         int             `json:"center"`
	HitRadius      float64         `json:"hitRadius"`
	Bones          []int           `json:"bones"`
	ColliderGroups []int           `json:"colliderGroups,omitempty"`

	Unmodeled Members `json:"-"`
}

// ColliderGroup attaches sphere colliders to a node.
type ColliderGroup struct {
	Node      int             `json:"node"`
	Colliders json.RawMessage `json:"colliders,omitempty"`

	Unmodeled Members `json:"-"`
}

// MaterialProperty is the VRM shader (MToon) parameter block of a material.
type MaterialProperty struct {
	Name              string               `json:"name"`
	Shader            string               `json:"shader"`
	RenderQueue       int                  `json:"renderQueue"`
	FloatProperties   map[string]float64   `json:"floatProperties"`
	VectorProperties  map[string][]float64 `json:"vectorProperties"`
	TextureProperties map[string]int       `json:"textureProperties"`
	KeywordMap        map[string]bool      `json:"keywordMap"`
	TagMap            map[string]string    `json:"tagMap"`

	Unmodeled Members `json:"-"`
}

// HumanBoneNodes returns the node index of every humanoid bone by name.
func (v *VRM) HumanBoneNodes() map[string]int {
	bones := make(map[string]int)
	if v == nil || v.Humanoid == nil {
		return bones
	}
	for _, b := range v.Humanoid.HumanBones {
		bones[b.Bone] = b.Node
	}
	return bones
}

// BlendShapeGroups returns the groups, or nil if there is no blendshape block.
func (v *VRM) BlendShapeGroups() []*BlendShapeGroup {
	if v == nil || v.BlendShapeMaster == nil {
		return nil
	}
	return v.BlendShapeMaster.BlendShapeGroups
}

// The VRM 0.x types keep the members they do not model in Unmodeled so that
// loading and saving an avatar loses nothing.

func (v *VRM) UnmarshalJSON(data []byte) (err error) {
	type plain VRM
	v.Unmodeled, err = decodeMembers(data, (*plain)(v))
	return err
}

func (v VRM) MarshalJSON() ([]byte, error) {
	type plain VRM
	return encodeMembers(plain(v), v.Unmodeled)
}

func (m *Meta) UnmarshalJSON(data []byte) (err error) {
	type plain Meta
	m.Unmodeled, err = decodeMembers(data, (*plain)(m))
	return err
}

func (m Meta) MarshalJSON() ([]byte, error) {
	type plain Meta
	return encodeMembers(plain(m), m.Unmodeled)
}

func (h *Humanoid) UnmarshalJSON(data []byte) (err error) {
	type plain Humanoid
	h.Unmodeled, err = decodeMembers(data, (*plain)(h))
	return err
}

func (h Humanoid) MarshalJSON() ([]byte, error) {
	type plain Humanoid
	return encodeMembers(plain(h), h.Unmodeled)
}

func (h *HumanBone) UnmarshalJSON(data []byte) (err error) {
	type plain HumanBone
	h.Unmodeled, err = decodeMembers(data, (*plain)(h))
	return err
}

func (h HumanBone) MarshalJSON() ([]byte, error) {
	type plain HumanBone
	return encodeMembers(plain(h), h.Unmodeled)
}

func (f *FirstPerson) UnmarshalJSON(data []byte) (err error) {
	type plain FirstPerson
	f.Unmodeled, err = decodeMembers(data, (*plain)(f))
	return err
}

func (f FirstPerson) MarshalJSON() ([]byte, error) {
	type plain FirstPerson
	return encodeMembers(plain(f), f.Unmodeled)
}

func (m *MeshAnnotation) UnmarshalJSON(data []byte) (err error) {
	type plain MeshAnnotation
	m.Unmodeled, err = decodeMembers(data, (*plain)(m))
	return err
}

func (m MeshAnnotation) MarshalJSON() ([]byte, error) {
	type plain MeshAnnotation
	return encodeMembers(plain(m), m.Unmodeled)
}

func (b *BlendShapeMaster) UnmarshalJSON(data []byte) (err error) {
	type plain BlendShapeMaster
	b.Unmodeled, err = decodeMembers(data, (*plain)(b))
	return err
}

func (b BlendShapeMaster) MarshalJSON() ([]byte, error) {
	type plain BlendShapeMaster
	return encodeMembers(plain(b), b.Unmodeled)
}

func (b *BlendShapeGroup) UnmarshalJSON(data []byte) (err error) {
	type plain BlendShapeGroup
	b.Unmodeled, err = decodeMembers(data, (*plain)(b))
	return err
}

func (b BlendShapeGroup) MarshalJSON() ([]byte, error) {
	type plain BlendShapeGroup
	return encodeMembers(plain(b), b.Unmodeled)
}

func (b *BlendShapeBind) UnmarshalJSON(data []byte) (err error) {
	type plain BlendShapeBind
	b.Unmodeled, err = decodeMembers(data, (*plain)(b))
	return err
}

func (b BlendShapeBind) MarshalJSON() ([]byte, error) {
	type plain BlendShapeBind
	return encodeMembers(plain(b), b.Unmodeled)
}

func (s *SecondaryAnimation) UnmarshalJSON(data []byte) (err error) {
	type plain SecondaryAnimation
	s.Unmodeled, err = decodeMembers(data, (*plain)(s))
	return err
}

func (s SecondaryAnimation) MarshalJSON() ([]byte, error) {
	type plain SecondaryAnimation
	return encodeMembers(plain(s), s.Unmodeled)
}

func (s *SpringBoneGroup) UnmarshalJSON(data []byte) (err error) {
	type plain SpringBoneGroup
	s.Unmodeled, err = decodeMembers(data, (*plain)(s))
	return err
}

func (s SpringBoneGroup) MarshalJSON() ([]byte, error) {
	type plain SpringBoneGroup
	return encodeMembers(plain(s), s.Unmodeled)
}

func (c *ColliderGroup) UnmarshalJSON(data []byte) (err error) {
	type plain ColliderGroup
	c.Unmodeled, err = decodeMembers(data, (*plain)(c))
	return err
}

func (c ColliderGroup) MarshalJSON() ([]byte, error) {
	type plain ColliderGroup
	return encodeMembers(plain(c), c.Unmodeled)
}

func (m *MaterialProperty) UnmarshalJSON(data []byte) (err error) {
	type plain MaterialProperty
	m.Unmodeled, err = decodeMembers(data, (*plain)(m))
	return err
}

func (m MaterialProperty) MarshalJSON() ([]byte, error) {
	type plain MaterialProperty
	return encodeMembers(plain(m), m.Unmodeled)
}
