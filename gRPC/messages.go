package proto

type InitEngineRequest struct {
	Name        string `json:"name"`
	System      string `json:"system"`
	Config      string `json:"cfg"`
	Weights     string `json:"weights"`
	Names       string `json:"names"`
	GpuIndex    *int32 `json:"gpuIndex,omitempty"`
	BatchSize   int32  `json:"batchSize,omitempty"`
	Description string `json:"description"`
}

type InitEngineResponse struct {
	Success bool   `json:"success"`
	Id      string `json:"id"`
	Message string `json:"message"`
}

// InferenceRequest carries either encoded image bytes or a path readable by
// the server.
type InferenceRequest struct {
	Id        string `json:"id"`
	ImgData   []byte `json:"imgData,omitempty"`
	ImagePath string `json:"imagePath,omitempty"`
}

type Position struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

// SingleResult is one detection; Box lists the corners LT, RT, RB, LB.
type SingleResult struct {
	Name       string      `json:"name"`
	Confidence float32     `json:"confidence"`
	Box        []*Position `json:"box"`
	Center     *Position   `json:"center"`
}

type InferenceResponse struct {
	Success bool            `json:"success"`
	Results []*SingleResult `json:"results"`
}

type DestroyEngineRequest struct {
	Id string `json:"id"`
}

type DestroyEngineResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type CheckEngineRequest struct {
	Id string `json:"id"`
}

type EngineInfo struct {
	Id              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	System          string   `json:"system"`
	ConfigPath      string   `json:"configPath"`
	WeightsPath     string   `json:"weightsPath"`
	ModulePath      string   `json:"modulePath"`
	Names           []string `json:"names"`
	GpuIndex        *int32   `json:"gpuIndex,omitempty"`
	BuiltWithOpenCV bool     `json:"builtWithOpenCV"`
	State           string   `json:"state"`
}

type CheckEngineResponse struct {
	Success    bool        `json:"success"`
	EngineInfo *EngineInfo `json:"engineInfo"`
	Message    string      `json:"message"`
}

type CheckAllEngineResponse struct {
	Success bool          `json:"success"`
	Engines []*EngineInfo `json:"engines"`
	Message string        `json:"message"`
}

type DeviceNameRequest struct {
	Id       string `json:"id"`
	GpuIndex *int32 `json:"gpuIndex,omitempty"`
}

type FileInfo struct {
	Name string `json:"name"`
}

// UploadFileRequest is one frame of an upload: FileInfo first, then chunks.
type UploadFileRequest struct {
	FileInfo  *FileInfo `json:"fileInfo,omitempty"`
	ChunkData []byte    `json:"chunkData,omitempty"`
}

type UploadFileResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	FilePath string `json:"filePath"`
}
