package glrender

const (
	maxDirectional = 8
	maxPoint       = 16
)

// sceneVertexShader feeds world-space varyings to the shading model.
const sceneVertexShader = `#version 410 core
layout(location = 0) in vec3 aPosition;
layout(location = 1) in vec3 aNormal;
layout(location = 2) in vec2 aUV;
layout(location = 3) in vec2 aUV2;
layout(location = 4) in vec3 aColor;

uniform mat4 uModel;
uniform mat4 uNormalMatrix;
uniform mat4 uViewProj;

out vec3 vPosition;
out vec3 vNormal;
out vec2 vUV;
out vec2 vUV2;
out vec3 vColor;

void main() {
	vec4 world = uModel * vec4(aPosition, 1.0);
	vPosition = world.xyz;
	vNormal = mat3(uNormalMatrix) * aNormal;
	vUV = aUV;
	vUV2 = aUV2;
	vColor = aColor;
	gl_Position = uViewProj * world;
}
`

// sceneFragmentShader is render.ShadeFragment followed by render.ToneMap.
const sceneFragmentShader = `#version 410 core
#define MAX_DIRECTIONAL 8
#define MAX_POINT 16

in vec3 vPosition;
in vec3 vNormal;
in vec2 vUV;
in vec2 vUV2;
in vec3 vColor;

uniform vec3 uEye;
uniform vec3 uAmbient;
uniform int uDirCount;
uniform vec3 uDirDirection[MAX_DIRECTIONAL];
uniform vec3 uDirRadiance[MAX_DIRECTIONAL];
uniform int uPointCount;
uniform vec3 uPointPosition[MAX_POINT];
uniform vec3 uPointRadiance[MAX_POINT];
uniform float uPointDistance[MAX_POINT];

uniform vec3 uColor;
uniform bool uVertexColors;
uniform float uOpacity;
uniform float uAlphaTest;
uniform vec3 uEmissive;
uniform float uEmissiveIntensity;
uniform float uShininess;
uniform float uLightMapIntensity;
uniform float uAOMapIntensity;
uniform bool uToneMap;

uniform bool uHasMap;
uniform bool uHasAlphaMap;
uniform bool uHasEmissiveMap;
uniform bool uHasLightMap;
uniform bool uHasAOMap;
uniform sampler2D uMap;
uniform sampler2D uAlphaMap;
uniform sampler2D uEmissiveMap;
uniform sampler2D uLightMap;
uniform sampler2D uAOMap;

out vec4 fragColor;

vec3 aces(vec3 x) {
	return clamp((x * (2.51 * x + 0.03)) / (x * (2.43 * x + 0.59) + 0.14), 0.0, 1.0);
}

void addLight(vec3 n, vec3 viewDir, vec3 toLight, vec3 radiance, inout vec3 direct, inout vec3 specular) {
	float ndl = dot(n, toLight);
	if (ndl <= 0.0) {
		return;
	}
	direct += radiance * ndl;
	if (uShininess > 0.0) {
		vec3 h = normalize(toLight + viewDir);
		float ndh = dot(n, h);
		if (ndh > 0.0) {
			specular += radiance * (pow(ndh, uShininess) * 0.04 * ndl);
		}
	}
}

void main() {
	vec3 diffuse = uColor;
	if (uVertexColors) {
		diffuse *= vColor;
	}
	float alpha = uOpacity;
	if (uHasMap) {
		vec4 t = texture(uMap, vUV);
		diffuse *= t.rgb;
		alpha *= t.a;
	}
	if (uHasAlphaMap) {
		alpha *= texture(uAlphaMap, vUV).g;
	}
	if (uAlphaTest > 0.0 && alpha < uAlphaTest) {
		discard;
	}

	vec3 n = length(vNormal) > 0.0 ? normalize(vNormal) : vec3(0.0);
	if (!gl_FrontFacing) {
		n = -n;
	}
	vec3 viewDir = normalize(uEye - vPosition);
	vec3 direct = vec3(0.0);
	vec3 specular = vec3(0.0);
	for (int i = 0; i < uDirCount; i++) {
		addLight(n, viewDir, -uDirDirection[i], uDirRadiance[i], direct, specular);
	}
	for (int i = 0; i < uPointCount; i++) {
		vec3 delta = uPointPosition[i] - vPosition;
		float dist = length(delta);
		float range = uPointDistance[i];
		if (dist == 0.0 || (range > 0.0 && dist > range)) {
			continue;
		}
		float atten = 1.0;
		if (range > 0.0) {
			float f = 1.0 - dist / range;
			atten = f * f;
		}
		addLight(n, viewDir, delta / dist, uPointRadiance[i] * atten, direct, specular);
	}

	vec3 indirect = uAmbient;
	if (uHasLightMap) {
		indirect += texture(uLightMap, vUV2).rgb * uLightMapIntensity;
	}
	if (uHasAOMap) {
		indirect *= (texture(uAOMap, vUV2).r - 1.0) * uAOMapIntensity + 1.0;
	}

	vec3 color = diffuse * (direct + indirect) + specular;
	vec3 emissive = uEmissive * uEmissiveIntensity;
	if (uHasEmissiveMap) {
		emissive *= texture(uEmissiveMap, vUV).rgb;
	}
	color += emissive;
	if (uToneMap) {
		color = aces(color);
	}
	fragColor = vec4(color, alpha);
}
`

// attrVertexShader passes clip-space positions through unchanged.
const attrVertexShader = `#version 410 core
layout(location = 0) in vec2 aClip;
layout(location = 1) in vec4 aAttr;

out vec4 vAttr;

void main() {
	vAttr = aAttr;
	gl_Position = vec4(aClip, 0.0, 1.0);
}
`

const attrFragmentShader = `#version 410 core
in vec4 vAttr;
out vec4 fragColor;

void main() {
	fragColor = vAttr;
}
`
